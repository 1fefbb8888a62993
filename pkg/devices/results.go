package devices

import (
	"encoding/json"
	"log"
)

// HostResult is the outcome of an operation on one device
type HostResult struct {
	Status    string      `json:"status"`
	Result    interface{} `json:"result"`
	Failed    bool        `json:"failed"`
	Exception string      `json:"exception,omitempty"`
	Diff      string      `json:"diff"`
	Changed   bool        `json:"changed"`
}

// Results maps device names to their outcome
type Results map[string]HostResult

func success(result interface{}) HostResult {
	return HostResult{Status: "success", Result: result}
}

func failure(err error) HostResult {
	return HostResult{Status: "failed", Failed: true, Exception: err.Error()}
}

// AnyFailed reports whether at least one host failed
func (r Results) AnyFailed() bool {
	for _, hr := range r {
		if hr.Failed {
			return true
		}
	}
	return false
}

// EnsureHostResults adds a failed entry for every requested host missing from results
func EnsureHostResults(results Results, requested []string) Results {
	if results == nil {
		results = Results{}
	}
	missing := 0
	for _, name := range requested {
		if _, ok := results[name]; ok {
			continue
		}
		results[name] = HostResult{
			Status:    "failed",
			Failed:    true,
			Exception: "no result returned for host",
		}
		missing++
	}
	if missing > 0 {
		log.Printf("Filled %d missing host results (requested %d, got %d)", missing, len(requested), len(requested)-missing)
	}
	return results
}

// ToMap converts results into the generic form stored in JSON columns
func (r Results) ToMap() map[string]interface{} {
	out := make(map[string]interface{}, len(r))
	for name, hr := range r {
		data, err := json.Marshal(hr)
		if err != nil {
			out[name] = map[string]interface{}{"status": "failed", "failed": true, "exception": err.Error()}
			continue
		}
		var m map[string]interface{}
		_ = json.Unmarshal(data, &m)
		out[name] = m
	}
	return out
}
