package keepalive

import (
	"encoding/json"
	"strings"
	"time"
)

// ConfigRecord is one user's keep-alive target.
type ConfigRecord struct {
	ConfigID        string     `json:"configId"`
	UserID          string     `json:"userId"`
	ConfigName      string     `json:"configName"`
	TargetUID       string     `json:"targetUID"`
	Cookie          string     `json:"cookie,omitempty"`
	IsActive        bool       `json:"isActive"`
	ExecutionOffset int        `json:"executionOffset"`
	LastExecuted    *time.Time `json:"lastExecuted"`
	LastResult      string     `json:"lastResult"`
	ExecutionCount  int        `json:"executionCount"`
	CreatedAt       time.Time  `json:"createdAt"`
	NextExecution   *time.Time `json:"nextExecution,omitempty"`
}

// Redacted returns a copy without the credential.
func (r ConfigRecord) Redacted() ConfigRecord {
	r.Cookie = ""
	return r
}

// AuthRecord holds the shared secret a user presents with each request.
type AuthRecord struct {
	UserID    string    `json:"userId"`
	UserToken string    `json:"userToken"`
	CreatedAt time.Time `json:"createdAt"`
}

// Keys builds storage keys: "{prefix}:{userId}:{configId}" for configs and
// "{authPrefix}:{userId}" for auth records.
type Keys struct {
	ConfigPrefix string
	AuthPrefix   string
}

func (k Keys) Config(userID, configID string) string {
	return k.ConfigPrefix + ":" + userID + ":" + configID
}

func (k Keys) User(userID string) string {
	return k.ConfigPrefix + ":" + userID + ":"
}

func (k Keys) AllConfigs() string {
	return k.ConfigPrefix + ":"
}

func (k Keys) Auth(userID string) string {
	return k.AuthPrefix + ":" + userID
}

func validateID(field, id string) error {
	if id == "" {
		return missingField(field)
	}
	if strings.Contains(id, ":") {
		return &ValidationError{Field: field, Reason: "must not contain ':'"}
	}
	return nil
}

func decodeConfig(key, raw string) (ConfigRecord, error) {
	var rec ConfigRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return ConfigRecord{}, &DecodeError{Key: key, Err: err}
	}
	if rec.ConfigID == "" || rec.UserID == "" {
		return ConfigRecord{}, &DecodeError{Key: key, Err: errMissingIdentity}
	}
	return rec, nil
}

func decodeAuth(key, raw string) (AuthRecord, error) {
	var rec AuthRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return AuthRecord{}, &DecodeError{Key: key, Err: err}
	}
	return rec, nil
}

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
