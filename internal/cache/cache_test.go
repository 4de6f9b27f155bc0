package cache

import (
	"bytes"
	"fmt"
	"slices"
	"sync"
	"testing"
)

func TestCache_BasicOperations(t *testing.T) {
	cache := NewCache[string, string]()

	t.Run("Set and Get", func(t *testing.T) {
		cache.Set("key", "value")

		got, exists := cache.Get("key")
		if !exists {
			t.Fatal("Expected key to exist")
		}
		if got != "value" {
			t.Errorf("Expected %q, got %q", "value", got)
		}
	})

	t.Run("Get non-existent key", func(t *testing.T) {
		if _, exists := cache.Get("missing"); exists {
			t.Error("Expected key to not exist")
		}
	})

	t.Run("Overwrite existing key", func(t *testing.T) {
		cache.Set("key", "value2")

		if got, _ := cache.Get("key"); got != "value2" {
			t.Errorf("Expected %q, got %q", "value2", got)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		cache.Delete("key")
		cache.Delete("missing")

		if _, exists := cache.Get("key"); exists {
			t.Error("Expected key to be deleted")
		}
	})
}

func TestCache_SetToAndValues(t *testing.T) {
	cache := NewCache[string, int]()
	cache.Set("old", 0)

	cache.SetTo(map[string]int{"a": 1, "b": 2, "c": 3})

	if _, exists := cache.Get("old"); exists {
		t.Error("Expected old items to be replaced")
	}
	if cache.Len() != 3 {
		t.Errorf("Expected 3 items, got %d", cache.Len())
	}

	values := cache.Values()
	slices.Sort(values)
	if !slices.Equal(values, []int{1, 2, 3}) {
		t.Errorf("Unexpected values %v", values)
	}

	cache.Clear()
	if cache.Len() != 0 || len(cache.Values()) != 0 {
		t.Error("Expected cache to be empty after Clear")
	}
}

func TestCache_Concurrency(t *testing.T) {
	cache := NewCache[int, string]()
	const numGoroutines = 50
	const numOperations = 200

	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(2)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numOperations; j++ {
				cache.Set(id*numOperations+j, fmt.Sprintf("value-%d-%d", id, j))
			}
		}(i)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numOperations; j++ {
				cache.Get(id*numOperations + j)
				cache.Values()
			}
		}(i)
	}
	wg.Wait()

	if cache.Len() != numGoroutines*numOperations {
		t.Errorf("Expected %d items, got %d", numGoroutines*numOperations, cache.Len())
	}
}

func TestRenderedMarkdownCache(t *testing.T) {
	ClearRenderedMarkdownCache()

	t.Run("Set and get", func(t *testing.T) {
		SetRenderedMarkdown("hash", "github", []byte("<h1>Test</h1>"), "Test")

		cached, found := GetRenderedMarkdown("hash", "github")
		if !found {
			t.Fatal("Expected cached content to be found")
		}
		if !bytes.Equal(cached.HTML, []byte("<h1>Test</h1>")) || cached.Title != "Test" {
			t.Errorf("Unexpected cached content %+v", cached)
		}
	})

	t.Run("Theme is part of the key", func(t *testing.T) {
		if _, found := GetRenderedMarkdown("hash", "monokai"); found {
			t.Error("Expected no entry for another theme")
		}
	})

	t.Run("Clear", func(t *testing.T) {
		ClearRenderedMarkdownCache()
		if _, found := GetRenderedMarkdown("hash", "github"); found {
			t.Error("Expected all cached content to be cleared")
		}
	})
}

func TestSyntaxCSSCache(t *testing.T) {
	if _, found := GetSyntaxCSS("no-such-style"); found {
		t.Error("Expected no stylesheet before Set")
	}

	SetSyntaxCSS("dracula", ".chroma{}")
	if css, found := GetSyntaxCSS("dracula"); !found || css != ".chroma{}" {
		t.Errorf("Unexpected stylesheet %q, %v", css, found)
	}
}
