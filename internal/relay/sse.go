package relay

import (
	"encoding/json"
	"io"
	"net/http"
)

var doneEvent = []byte("data: [DONE]\n\n")

func writeEvent(w io.Writer, f http.Flusher, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	buf := make([]byte, 0, len(data)+8)
	buf = append(buf, "data: "...)
	buf = append(buf, data...)
	buf = append(buf, '\n', '\n')

	if _, err := w.Write(buf); err != nil {
		return err
	}
	f.Flush()
	return nil
}

func writeDone(w io.Writer, f http.Flusher) error {
	if _, err := w.Write(doneEvent); err != nil {
		return err
	}
	f.Flush()
	return nil
}
