package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

const externalHTTPTimeout = 30 * time.Second

var externalHTTPClient = &http.Client{
	Timeout: externalHTTPTimeout,
}

// APIClient talks to the laboratory backend. A bearer credential is
// attached when present; without one the request still goes out and the
// server decides authorization.
type APIClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewAPIClient(cfg Config) *APIClient {
	return &APIClient{
		BaseURL:    cfg.APIBaseURL,
		Token:      cfg.APIToken,
		HTTPClient: externalHTTPClient,
	}
}

// TracingStatus is the backend's view of a business identifier across
// the reception/verification/compression stages.
type TracingStatus struct {
	Exists       bool            `json:"exists"`
	Recepcion    *StageStatus    `json:"recepcion"`
	Verificacion *StageStatus    `json:"verificacion"`
	Compresion   *StageStatus    `json:"compresion"`
	Datos        json.RawMessage `json:"datos"`
}

type StageStatus struct {
	Status string `json:"status"`
}

type Suggestion struct {
	NumeroRecepcion string            `json:"numero_recepcion"`
	Cliente         string            `json:"cliente"`
	FechaRecepcion  string            `json:"fecha_recepcion"`
	MuestrasCount   int               `json:"muestras_count"`
	Estados         SuggestionEstados `json:"estados"`
}

type SuggestionEstados struct {
	Verificacion string `json:"verificacion"`
}

func (c *APIClient) do(method, path string, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("executing request: %w", err)
	}
	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	return respBody, resp.StatusCode, nil
}

func (c *APIClient) doJSON(method, path string, body []byte, out any) error {
	respBody, status, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return apiError(status, respBody)
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
	}
	return nil
}

// apiError surfaces the server's detail message when it sends one.
func apiError(status int, body []byte) error {
	if detail := gjson.GetBytes(body, "detail").String(); detail != "" {
		return fmt.Errorf("backend returned %d: %s", status, detail)
	}
	return fmt.Errorf("backend returned %d: %s", status, string(body))
}

func (c *APIClient) GetVerificacion(id int64) (VerificacionMuestras, error) {
	var v VerificacionMuestras
	err := c.doJSON("GET", "/api/verificacion/"+strconv.FormatInt(id, 10), nil, &v)
	return v, err
}

func (c *APIClient) ListVerificaciones(skip, limit int) ([]VerificacionMuestras, error) {
	var out []VerificacionMuestras
	path := fmt.Sprintf("/api/verificacion/?skip=%d&limit=%d", skip, limit)
	err := c.doJSON("GET", path, nil, &out)
	return out, err
}

func (c *APIClient) CreateVerificacion(v VerificacionMuestras) (VerificacionMuestras, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return VerificacionMuestras{}, err
	}
	var created VerificacionMuestras
	err = c.doJSON("POST", "/api/verificacion/", body, &created)
	return created, err
}

func (c *APIClient) UpdateVerificacion(id int64, v VerificacionMuestras) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.UpdateVerificacionRaw(id, body)
}

// UpdateVerificacionRaw sends an already-marshaled record body, as the
// autosave controller holds snapshots in wire form.
func (c *APIClient) UpdateVerificacionRaw(id int64, body []byte) error {
	return c.doJSON("PUT", "/api/verificacion/"+strconv.FormatInt(id, 10), body, nil)
}

func (c *APIClient) DeleteVerificacion(id int64) error {
	return c.doJSON("DELETE", "/api/verificacion/"+strconv.FormatInt(id, 10), nil, nil)
}

// ExportVerificacion downloads the spreadsheet artifact for a record.
func (c *APIClient) ExportVerificacion(id int64) ([]byte, error) {
	body, status, err := c.do("GET", fmt.Sprintf("/api/verificacion/%d/exportar", id), nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, apiError(status, body)
	}
	return body, nil
}

// GenerateExcel asks the backend to (re)generate the spreadsheet
// artifact server-side. 200/201 signals success.
func (c *APIClient) GenerateExcel(id int64) error {
	body, status, err := c.do("POST", fmt.Sprintf("/api/verificacion/%d/generar-excel", id), nil)
	if err != nil {
		return err
	}
	if status != 200 && status != 201 {
		return apiError(status, body)
	}
	return nil
}

func (c *APIClient) CheckStatus(numero string) (TracingStatus, error) {
	var st TracingStatus
	err := c.doJSON("GET", "/api/tracing/validate/"+url.PathEscape(numero), nil, &st)
	return st, err
}

func (c *APIClient) GetSuggestions(q string) ([]Suggestion, error) {
	var out []Suggestion
	err := c.doJSON("GET", "/api/tracing/suggest?q="+url.QueryEscape(q), nil, &out)
	return out, err
}

// GetRecepcion fetches the reception detail raw; the payload's item list
// and code fields vary between backend versions, so callers pick through
// it with gjson.
func (c *APIClient) GetRecepcion(id int64) ([]byte, error) {
	body, status, err := c.do("GET", "/api/recepcion/"+strconv.FormatInt(id, 10), nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, apiError(status, body)
	}
	return body, nil
}
