package output

import (
	"encoding/json"

	"github.com/Krosebrook/RoseyRecords-sub000/internal/core"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatJob renders one job record as JSON.
func (f *JSONFormatter) FormatJob(job *core.Job) (string, error) {
	if job == nil {
		return "", nil
	}
	return f.marshal(job)
}

// FormatWindows renders admission windows as a JSON array.
func (f *JSONFormatter) FormatWindows(windows []WindowView) (string, error) {
	if windows == nil {
		windows = []WindowView{}
	}
	return f.marshal(windows)
}

func (f *JSONFormatter) marshal(value interface{}) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(value, "", "  ")
	} else {
		data, err = json.Marshal(value)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
