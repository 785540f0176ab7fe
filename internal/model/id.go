package model

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

type IDType string

const (
	IDTypeCommand IDType = "cmd"
	IDTypeSession IDType = "ses"
)

var validIDTypes = map[IDType]bool{
	IDTypeCommand: true,
	IDTypeSession: true,
}

var idRegex = regexp.MustCompile(`^(cmd|ses)_([0-9a-f-]{36})$`)

// GenerateID returns "<type>_<uuid>". Command ids correlate log lines for one inbound
// record; session ids identify one established connection.
func GenerateID(idType IDType) (string, error) {
	if !validIDTypes[idType] {
		return "", fmt.Errorf("invalid ID type: %s", idType)
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}
	return fmt.Sprintf("%s_%s", idType, id.String()), nil
}

func ValidateID(id string) bool {
	match := idRegex.FindStringSubmatch(id)
	if match == nil {
		return false
	}
	_, err := uuid.Parse(match[2])
	return err == nil
}

func ParseIDType(id string) (IDType, error) {
	if !ValidateID(id) {
		return "", fmt.Errorf("invalid ID format: %s", id)
	}
	return IDType(idRegex.FindStringSubmatch(id)[1]), nil
}
