package trainer

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"
	"unicode"

	"github.com/rs/zerolog"
)

// minExampleTokens is the floor below which an example carries too little
// signal to train on and is dropped.
const minExampleTokens = 10

// Example is one usable training example after filtering and truncation.
type Example struct {
	Text   string
	Tokens int
}

// Dataset is the filtered view of a JSONL training file.
type Dataset struct {
	Examples  []Example
	Skipped   int
	Truncated int
}

// TokenCount returns the sum of token estimates over all examples.
func (d *Dataset) TokenCount() int {
	n := 0
	for _, ex := range d.Examples {
		n += ex.Tokens
	}
	return n
}

type datasetLine struct {
	Text string `json:"text"`
}

// LoadDataset reads a JSONL file of {"text": ...} objects, dropping malformed
// lines and examples shorter than minExampleTokens, and truncating examples
// longer than maxSeqLength tokens. Token counts are a whitespace and
// punctuation estimate, not the backend tokenizer's exact count; the backend
// applies its own tokenizer during training.
func LoadDataset(path string, maxSeqLength int, log zerolog.Logger) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrDatasetNotFound(path)
		}
		return nil, ErrDatasetLoadFailed(err.Error())
	}
	defer f.Close()

	ds := &Dataset{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var dl datasetLine
		if err := json.Unmarshal([]byte(raw), &dl); err != nil || dl.Text == "" {
			log.Warn().Int("line", lineNo).Msg("skipping malformed dataset line")
			ds.Skipped++
			continue
		}
		spans := tokenSpans(dl.Text)
		if len(spans) < minExampleTokens {
			log.Debug().Int("line", lineNo).Int("tokens", len(spans)).Msg("skipping short example")
			ds.Skipped++
			continue
		}
		text := dl.Text
		tokens := len(spans)
		if maxSeqLength > 0 && tokens > maxSeqLength {
			text = text[:spans[maxSeqLength-1].end]
			tokens = maxSeqLength
			ds.Truncated++
		}
		ds.Examples = append(ds.Examples, Example{Text: text, Tokens: tokens})
	}
	if err := sc.Err(); err != nil {
		return nil, ErrDatasetLoadFailed(err.Error())
	}
	if len(ds.Examples) == 0 {
		return nil, ErrDatasetLoadFailed("no usable examples in " + path)
	}
	return ds, nil
}

type span struct {
	start, end int
}

// tokenSpans splits text into word and punctuation tokens, returning byte
// spans so callers can truncate at a token boundary.
func tokenSpans(text string) []span {
	var spans []span
	start := -1
	for i, r := range text {
		switch {
		case unicode.IsSpace(r):
			if start >= 0 {
				spans = append(spans, span{start, i})
				start = -1
			}
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			if start >= 0 {
				spans = append(spans, span{start, i})
				start = -1
			}
			spans = append(spans, span{i, i + len(string(r))})
		default:
			if start < 0 {
				start = i
			}
		}
	}
	if start >= 0 {
		spans = append(spans, span{start, len(text)})
	}
	return spans
}
