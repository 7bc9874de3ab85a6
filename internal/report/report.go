package report

import (
	"os"

	jsoniter "github.com/json-iterator/go"

	"example.com/tlegate/internal/gate"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func SaveAcceptanceJSON(rep gate.AcceptanceReport, out string) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func LoadAcceptanceJSON(path string) (gate.AcceptanceReport, error) {
	var rep gate.AcceptanceReport
	b, err := os.ReadFile(path)
	if err != nil {
		return rep, err
	}
	err = json.Unmarshal(b, &rep)
	return rep, err
}
