// Command invidx builds inverted-index generations from an HTML corpus and
// answers single-term queries against them, either once from the command
// line, interactively, or as an HTTP service.
package main

func main() {
	Execute()
}
