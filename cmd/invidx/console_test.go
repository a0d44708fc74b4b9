package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/invidx/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/invidx/pkg/errors"
)

type mapSearcher map[string][]executor.Result

func (m mapSearcher) Search(ctx context.Context, term string) ([]executor.Result, error) {
	if term == "broken" {
		return nil, apperrors.ErrCorruptIndex
	}
	if r, ok := m[term]; ok {
		return r, nil
	}
	return []executor.Result{}, nil
}

func TestRunConsole(t *testing.T) {
	s := mapSearcher{
		"cat": {{Document: "A", Weight: 100}, {Document: "B", Weight: 50}},
	}
	in := strings.NewReader("Cat\nbroken dog\nquit\ncat\n")
	var out bytes.Buffer
	if err := runConsole(context.Background(), s, in, &out); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	for _, want := range []string{
		"cat: 2 documents",
		"  A  100",
		"  B  50",
		"broken: error: corrupt index",
		"dog: no documents",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Count(got, "cat: 2 documents") != 1 {
		t.Errorf("console kept reading after quit:\n%s", got)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("stdin closed") }

func TestRunConsoleReadError(t *testing.T) {
	var out bytes.Buffer
	if err := runConsole(context.Background(), mapSearcher{}, failingReader{}, &out); err == nil {
		t.Error("expected read error")
	}
}
