package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/google/uuid"
)

// ErrInvalidMessage is returned when a message body cannot be decoded into a known message.
var ErrInvalidMessage = errors.New("invalid message")

// Layouts accepted for timestamps. Naive timestamps are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// DecodeUserCreateRequest decodes a JSON UserCreateRequest.
// Missing optional fields get the same defaults as NewUserCreateRequest.
func DecodeUserCreateRequest(body []byte) (UserCreateRequest, error) {
	req := NewUserCreateRequest("")
	if err := decode(body, &req, "username"); err != nil {
		return UserCreateRequest{}, err
	}
	return req, nil
}

// DecodeUserCreatedResponse decodes a JSON UserCreatedResponse.
// Missing optional fields get the same defaults as NewUserCreatedResponse.
func DecodeUserCreatedResponse(body []byte) (UserCreatedResponse, error) {
	resp := NewUserCreatedResponse(uuid.Nil, "")
	if err := decode(body, &resp, "request_id", "status", "username"); err != nil {
		return UserCreatedResponse{}, err
	}
	if !resp.Status.Valid() {
		return UserCreatedResponse{}, fmt.Errorf("%w: unknown status %q", ErrInvalidMessage, resp.Status)
	}
	return resp, nil
}

func decode(body []byte, target any, required ...string) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if raw == nil {
		return fmt.Errorf("%w: expected a JSON object", ErrInvalidMessage)
	}

	for _, key := range required {
		if v, ok := raw[key]; !ok || v == nil {
			return fmt.Errorf("%w: missing required field %q", ErrInvalidMessage, key)
		}
	}

	d, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			numberHook,
			timeHook,
			mapstructure.TextUnmarshallerHookFunc(),
		),
		ErrorUnused: true,
		Result:      target,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %v", err)
	}
	if err := d.Decode(raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return nil
}

// numberHook rejects JSON numbers for string fields. json.Number has a string kind, which mapstructure would
// otherwise copy as is.
func numberHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from != reflect.TypeFor[json.Number]() || to.Kind() != reflect.String {
		return data, nil
	}
	return nil, fmt.Errorf("expected a string, got number %v", data)
}

// timeHook parses timestamps, with or without a zone offset.
func timeHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeFor[time.Time]() || from.Kind() != reflect.String {
		return data, nil
	}

	s, _ := data.(string)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return nil, fmt.Errorf("cannot parse %q as a timestamp", s)
}
