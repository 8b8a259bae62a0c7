package backend

import (
	"strings"
	"unicode"
)

// Splitter turns a stream of text fragments into whole sentences.
type Splitter struct {
	buf  strings.Builder
	emit func(string)
}

// NewSplitter returns a splitter that calls emit once per sentence.
func NewSplitter(emit func(string)) *Splitter {
	return &Splitter{emit: emit}
}

// Write appends a fragment and emits every sentence it completes. A sentence
// ends at '.', '!' or '?' followed by whitespace; that whitespace stays on the
// sentence, so the emitted sentences concatenate back to the input.
func (s *Splitter) Write(fragment string) {
	s.buf.WriteString(fragment)
	text := s.buf.String()
	start := 0
	runes := []rune(text)
	for i := 0; i < len(runes)-1; i++ {
		if isTerminator(runes[i]) && unicode.IsSpace(runes[i+1]) {
			j := i + 1
			for j < len(runes) && unicode.IsSpace(runes[j]) {
				j++
			}
			s.send(string(runes[start:j]))
			start = j
			i = j - 1
		}
	}
	s.buf.Reset()
	s.buf.WriteString(string(runes[start:]))
}

// Flush emits whatever is buffered as a final sentence.
func (s *Splitter) Flush() {
	s.send(s.buf.String())
	s.buf.Reset()
}

func (s *Splitter) send(sentence string) {
	if strings.TrimSpace(sentence) == "" || s.emit == nil {
		return
	}
	s.emit(sentence)
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '…'
}
