package provisioning

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// ConnectionDescriptor is what a session needs to open its shadow connection.
type ConnectionDescriptor struct {
	DeviceID    string `json:"deviceId"`
	AssignedHub string `json:"assignedHub"`
	Status      string `json:"status"`
	DeviceKey   string `json:"-"`
}

// Service registers device identities and removes them again.
type Service interface {
	Register(ctx context.Context, deviceID, key string, payload map[string]any) (*ConnectionDescriptor, error)
	DeleteIdentity(ctx context.Context, deviceID string) error
}

// Error is a failed registration or identity removal.
type Error struct {
	DeviceID   string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("provisioning %s: %v", e.DeviceID, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("provisioning %s: status %d: %s", e.DeviceID, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("provisioning %s: %s", e.DeviceID, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// DeriveDeviceKey computes the per-device symmetric key from the group enrollment key.
// A base64 group key is decoded first; anything else is used as raw bytes.
func DeriveDeviceKey(groupKey, deviceID string) string {
	secret, err := base64.StdEncoding.DecodeString(groupKey)
	if err != nil {
		secret = []byte(groupKey)
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(deviceID))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type registrationRequest struct {
	RegistrationID string         `json:"registrationId"`
	Payload        map[string]any `json:"payload,omitempty"`
}

type errorBody struct {
	Message string `json:"message"`
}

// HTTPService talks to the provisioning endpoint over REST.
type HTTPService struct {
	HTTP *resty.Client
}

func NewHTTPService(baseURL string, timeout time.Duration) *HTTPService {
	r := resty.New()
	r.SetBaseURL(baseURL)
	r.SetTimeout(timeout)
	r.SetHeader("Content-Type", "application/json")
	r.SetHeader("Accept", "application/json")
	return &HTTPService{HTTP: r}
}

func (s *HTTPService) Register(ctx context.Context, deviceID, key string, payload map[string]any) (*ConnectionDescriptor, error) {
	if deviceID == "" {
		return nil, &Error{Message: "device id is required"}
	}

	resp, err := s.HTTP.R().
		SetContext(ctx).
		SetPathParam("deviceId", deviceID).
		SetHeader("Authorization", "SharedAccessKey "+key).
		SetBody(registrationRequest{RegistrationID: deviceID, Payload: payload}).
		SetResult(&ConnectionDescriptor{}).
		SetError(&errorBody{}).
		Put("/registrations/{deviceId}")
	if err != nil {
		return nil, &Error{DeviceID: deviceID, Err: err}
	}
	if resp.IsError() {
		return nil, &Error{DeviceID: deviceID, StatusCode: resp.StatusCode(), Message: errorMessage(resp)}
	}

	desc, ok := resp.Result().(*ConnectionDescriptor)
	if !ok || desc.AssignedHub == "" {
		return nil, &Error{DeviceID: deviceID, Message: "registration returned no assigned hub"}
	}
	if desc.DeviceID == "" {
		desc.DeviceID = deviceID
	}
	desc.DeviceKey = key
	return desc, nil
}

// DeleteIdentity removes the device identity. A missing identity is not an error.
func (s *HTTPService) DeleteIdentity(ctx context.Context, deviceID string) error {
	resp, err := s.HTTP.R().
		SetContext(ctx).
		SetPathParam("deviceId", deviceID).
		SetError(&errorBody{}).
		Delete("/identities/{deviceId}")
	if err != nil {
		return &Error{DeviceID: deviceID, Err: err}
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil
	}
	if resp.IsError() {
		return &Error{DeviceID: deviceID, StatusCode: resp.StatusCode(), Message: errorMessage(resp)}
	}
	return nil
}

func errorMessage(resp *resty.Response) string {
	if body, ok := resp.Error().(*errorBody); ok && body.Message != "" {
		return body.Message
	}
	return resp.String()
}

// IsProvisioningError reports whether err came from the provisioning service.
func IsProvisioningError(err error) bool {
	var pe *Error
	return errors.As(err, &pe)
}
