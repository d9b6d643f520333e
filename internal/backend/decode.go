package backend

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/babelmark/babelmark/internal/translate"
)

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"
)

// decodeStream reads a server-sent event body line by line and yields delta
// events followed by one done event. Lines without the data prefix and
// payloads that are not chunk JSON are skipped. A trailing fragment with no
// line break is incomplete and never parsed. A read error other than EOF is
// returned without a done event so the caller can report it.
func decodeStream(body io.Reader, segmentID string, yield func(translate.Event) bool) error {
	br := bufio.NewReader(body)
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				yield(translate.Done(segmentID))
				return nil
			}
			return err
		}

		ev, ok := parseLine(line, segmentID)
		if !ok {
			continue
		}
		if !yield(ev) || ev.Type == translate.EventDone {
			return nil
		}
	}
}

func parseLine(line, segmentID string) (translate.Event, bool) {
	line = strings.TrimRight(line, "\r\n")
	data, ok := strings.CutPrefix(line, dataPrefix)
	if !ok {
		return translate.Event{}, false
	}
	data = strings.TrimSpace(data)
	if data == doneSentinel {
		return translate.Done(segmentID), true
	}

	var chunk openai.ChatCompletionStreamResponse
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return translate.Event{}, false
	}
	if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
		return translate.Event{}, false
	}
	return translate.Delta(segmentID, chunk.Choices[0].Delta.Content), true
}
