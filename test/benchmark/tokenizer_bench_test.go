package benchmark

import (
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer/markup"
	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer/tokenizer"
)

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"medium": `<html><head><title>CSCE 4013 Information Retrieval</title></head>
        <body><!-- course page --><h1>Syllabus</h1><p>Students build an inverted
        index over a collection of web pages, filter stopwords and rare terms and
        weight every posting by term frequency. <b>Homework 3</b> is due on the
        20th.</p></body></html>`,
	"long": strings.Repeat(`<div class="entry"><p>Information retrieval systems
        tokenize documents into terms, drop stopwords, count occurrences per
        document and store postings in a fixed-width binary layout so lookups can
        seek directly to a record.</p></div>`, 50),
}

func BenchmarkTokens(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				n := 0
				for range tokenizer.Tokens(text) {
					n++
				}
			}
		})
	}
}

func BenchmarkTokensParallel(b *testing.B) {
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			for range tokenizer.Tokens(text) {
			}
		}
	})
}

func BenchmarkStrip(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = markup.Strip(text)
			}
		})
	}
}
