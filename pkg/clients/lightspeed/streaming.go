package lightspeed

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/RedHatInsights/ai-web-clients-sub001/pkg/client"
)

const doneMarker = "[DONE]"

// streamMessage consumes the SSE body of a streaming send. Each event's
// answer field is a token; tokens are accumulated so that every chunk handed
// to afterChunk carries the full answer so far, and the returned response is
// the final accumulated state.
func streamMessage(ctx context.Context, resp *http.Response, afterChunk client.AfterChunkFunc) (*client.MessageResponse, error) {
	reader := bufio.NewReader(resp.Body)

	var answer strings.Builder
	ret := &client.MessageResponse{}
	chunkCount := 0

	var eventLines [][]byte
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err != io.EOF {
				return nil, errors.Wrap(err, "failed to read streaming response")
			}
			log.Debug().Int("chunks", chunkCount).Msg("streaming reader finished")
			break
		}

		if len(bytes.TrimSpace(line)) != 0 {
			eventLines = append(eventLines, line)
			continue
		}

		// empty line terminates an event
		data := extractEventData(eventLines)
		eventLines = eventLines[:0]
		if data == "" {
			continue
		}
		if data == doneMarker {
			break
		}

		payload := messagePayload{}
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			log.Debug().Err(err).Msg("failed to parse SSE event")
			continue
		}

		answer.WriteString(payload.Answer)
		chunkCount++

		ret.Answer = answer.String()
		if payload.MessageID != "" {
			ret.MessageID = payload.MessageID
		}
		if payload.ConversationID != "" {
			ret.ConversationID = payload.ConversationID
		}
		if payload.AdditionalAttributes != nil {
			ret.AdditionalAttributes = payload.AdditionalAttributes
		}

		if afterChunk != nil {
			afterChunk(&client.MessageResponse{
				MessageID:            ret.MessageID,
				Answer:               ret.Answer,
				ConversationID:       ret.ConversationID,
				AdditionalAttributes: ret.AdditionalAttributes,
			})
		}
	}

	return ret, nil
}

// extractEventData concatenates the data fields of one SSE event.
func extractEventData(lines [][]byte) string {
	data := ""
	for _, line := range lines {
		line = bytes.TrimSuffix(line, []byte("\n"))
		line = bytes.TrimSuffix(line, []byte("\r"))

		parts := bytes.SplitN(line, []byte(":"), 2)
		if len(parts) != 2 || string(parts[0]) != "data" {
			continue
		}
		data += string(bytes.TrimSpace(parts[1]))
	}
	return data
}
