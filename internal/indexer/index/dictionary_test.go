package index

import (
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/invidx/internal/indexer/stoplist"
)

func TestDictionaryConcurrentAdds(t *testing.T) {
	d := NewDictionary()
	const writers = 16
	const perWriter = 500
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				d.Add("shared", 0)
			}
			d.AddDocument(1, map[string]int{"shared": 1})
		}()
	}
	wg.Wait()

	if got := d.Count("shared", 0); got != writers*perWriter {
		t.Errorf("count(shared, 0) = %d, want %d", got, writers*perWriter)
	}
	if got := d.Count("shared", 1); got != writers {
		t.Errorf("count(shared, 1) = %d, want %d", got, writers)
	}
}

func TestDictionaryPruneAndTotals(t *testing.T) {
	d := NewDictionary()
	d.AddDocument(0, map[string]int{"the": 1, "cat": 1, "sat": 1})
	d.AddDocument(1, map[string]int{"the": 1, "cat": 1, "ran": 1})
	d.AddDocument(2, map[string]int{"a": 1, "dog": 1, "ran": 1})

	verdicts := d.Prune(stoplist.Policy{
		Stopwords:      stoplist.Parse("the a"),
		MaxTokenLength: 32,
		MinRepetitions: 2,
	})
	if verdicts[stoplist.Admitted] != 2 {
		t.Errorf("admitted = %d, want 2", verdicts[stoplist.Admitted])
	}
	if verdicts[stoplist.RejectedRare] != 2 || verdicts[stoplist.RejectedStopword] != 2 {
		t.Errorf("unexpected verdicts %v", verdicts)
	}
	if d.Len() != 2 {
		t.Fatalf("Len = %d, want 2", d.Len())
	}
	if d.Count("sat", 0) != 0 {
		t.Error("rejected term kept its counts")
	}

	totals := d.DocumentTotals()
	want := map[int32]int{0: 1, 1: 2, 2: 1}
	for id, n := range want {
		if totals[id] != n {
			t.Errorf("total[%d] = %d, want %d", id, totals[id], n)
		}
	}
}

func TestDictionaryLayout(t *testing.T) {
	d := NewDictionary()
	d.AddDocument(2, map[string]int{"beta": 3, "alpha": 1})
	d.AddDocument(0, map[string]int{"alpha": 2})
	d.AddDocument(1, map[string]int{"beta": 1, "alpha": 1})
	docs := []Document{{0, "a.html"}, {1, "b.html"}, {2, "c.html"}}

	ix := d.Layout(docs)
	if err := ix.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(ix.Tokens) != 2 || ix.Tokens[0].Text != "alpha" || ix.Tokens[1].Text != "beta" {
		t.Fatalf("tokens = %+v", ix.Tokens)
	}

	alpha, ok := ix.Lookup("alpha")
	if !ok || alpha.PostingIndex != 0 || alpha.DocumentCount != 3 {
		t.Fatalf("alpha = %+v", alpha)
	}
	beta, _ := ix.Lookup("beta")
	if beta.PostingIndex != 3 || beta.DocumentCount != 2 {
		t.Fatalf("beta = %+v", beta)
	}

	wantAlpha := []Posting{
		{0, Weight(2, 2)},
		{1, Weight(1, 2)},
		{2, Weight(1, 4)},
	}
	for i, want := range wantAlpha {
		if got := ix.Postings[int(alpha.PostingIndex)+i]; got != want {
			t.Errorf("alpha posting %d = %+v, want %+v", i, got, want)
		}
	}
	if got := ix.Postings[beta.PostingIndex+1]; got != (Posting{2, 75}) {
		t.Errorf("beta posting 1 = %+v", got)
	}
}

func TestWeight(t *testing.T) {
	if w := Weight(1, 2); w != 50 {
		t.Errorf("Weight(1, 2) = %v", w)
	}
	if w := Weight(1, 3); w != 100.0/3 {
		t.Errorf("Weight(1, 3) = %v", w)
	}
}

func TestValidateDetectsOverlap(t *testing.T) {
	ix := New(
		[]Document{{0, "a"}},
		[]Token{{"x", 2, 0}, {"y", 1, 1}},
		[]Posting{{0, 1}, {0, 1}, {0, 1}},
	)
	if err := ix.Validate(); err == nil {
		t.Error("expected overlap error")
	}
	ix = New([]Document{{0, "a"}}, []Token{{"x", 1, 0}}, []Posting{{5, 1}})
	if err := ix.Validate(); err == nil {
		t.Error("expected unknown document error")
	}
}
