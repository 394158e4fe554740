package sysapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Provisioner define el contrato con el servicio que crea y elimina cuentas
// de sistema operativo (usuario Linux + maildir).
type Provisioner interface {
	CreateSystemUser(ctx context.Context, username, email, authToken string) (SystemUser, error)
	CheckSystemUser(ctx context.Context, username, authToken string) (SystemUserStatus, error)
	RemoveSystemUser(ctx context.Context, username, authToken string) error
}

// SystemUser describe la cuenta de sistema creada por el provisioner.
type SystemUser struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	HomeDir  string `json:"homeDir"`
	MailDir  string `json:"mailDir"`
}

// SystemUserStatus describe el resultado del chequeo de existencia.
type SystemUserStatus struct {
	Exists  bool   `json:"exists"`
	Maildir bool   `json:"maildir"`
	HomeDir string `json:"homeDir,omitempty"`
}

// ErrUnreachable indica timeout o falla de conexion, distinto de un error de
// aplicacion devuelto por el API.
var ErrUnreachable = errors.New("system api not responding")

// APIError es un error de aplicacion (4xx/5xx) del API de sistema.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("system api error: status=%d message=%s", e.Status, e.Message)
	}
	return fmt.Sprintf("system api error: status=%d", e.Status)
}

// HTTPClient implementa Provisioner contra el API HTTP con bearer token.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPClient construye un cliente con timeout acotado (10s recomendado).
func NewHTTPClient(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Exists  *bool           `json:"exists,omitempty"`
	Maildir *bool           `json:"maildir,omitempty"`
	HomeDir string          `json:"homeDir,omitempty"`
}

func (c *HTTPClient) CreateSystemUser(ctx context.Context, username, email, authToken string) (SystemUser, error) {
	body, err := json.Marshal(map[string]string{
		"username": username,
		"email":    email,
	})
	if err != nil {
		return SystemUser{}, fmt.Errorf("marshal request: %w", err)
	}

	env, err := c.do(ctx, http.MethodPost, "/users/system", authToken, bytes.NewReader(body))
	if err != nil {
		return SystemUser{}, err
	}

	var created SystemUser
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &created); err != nil {
			return SystemUser{}, fmt.Errorf("unmarshal response: %w", err)
		}
	}
	c.logger.Info("system user created", zap.String("username", username))
	return created, nil
}

func (c *HTTPClient) CheckSystemUser(ctx context.Context, username, authToken string) (SystemUserStatus, error) {
	env, err := c.do(ctx, http.MethodGet, "/users/system/"+username, authToken, nil)
	if err != nil {
		return SystemUserStatus{}, err
	}

	status := SystemUserStatus{HomeDir: env.HomeDir}
	if env.Exists != nil {
		status.Exists = *env.Exists
	}
	if env.Maildir != nil {
		status.Maildir = *env.Maildir
	}
	return status, nil
}

func (c *HTTPClient) RemoveSystemUser(ctx context.Context, username, authToken string) error {
	_, err := c.do(ctx, http.MethodDelete, "/users/system/"+username, authToken, nil)
	if err != nil {
		return err
	}
	c.logger.Info("system user removed", zap.String("username", username))
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, path, authToken string, body io.Reader) (envelope, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return envelope{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+authToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("system api request failed", zap.String("path", path), zap.Error(err))
		return envelope{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return envelope{}, fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if len(respBody) > 0 {
		// El cuerpo puede no ser JSON en errores de proxy; se ignora en ese caso.
		_ = json.Unmarshal(respBody, &env)
	}

	if resp.StatusCode >= 400 {
		c.logger.Warn("system api error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("message", env.Message),
		)
		return envelope{}, &APIError{Status: resp.StatusCode, Message: env.Message}
	}

	return env, nil
}
