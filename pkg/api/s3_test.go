package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/supporttools/GoNetGuard/pkg/config"
)

func TestS3ConfigHandler_GetS3Config(t *testing.T) {
	cfg := &config.AppConfig{
		S3: config.S3Config{
			Enabled:   true,
			Region:    "us-east-1",
			Bucket:    "net-configs",
			Prefix:    "netguard",
			Endpoint:  "https://s3.amazonaws.com",
			AccessKey: "test-access-key",
			SecretKey: "test-secret-key",
			UseSSL:    true,
		},
	}
	handler := NewS3ConfigHandler(cfg, nil)

	req, err := http.NewRequest("GET", "/api/storage/s3", nil)
	if err != nil {
		t.Fatal(err)
	}
	rr := httptest.NewRecorder()
	handler.handleS3Config(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusOK)
	}

	var response S3Response
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	data, ok := response.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected data to be a map")
	}
	if data["bucket"] != "net-configs" {
		t.Errorf("Expected bucket=net-configs, got %v", data["bucket"])
	}
	if data["secret_access_key"] != "********" {
		t.Errorf("Expected the secret to be masked, got %v", data["secret_access_key"])
	}
}

func TestS3ConfigHandler_RejectsWrites(t *testing.T) {
	handler := NewS3ConfigHandler(&config.AppConfig{}, nil)

	req, _ := http.NewRequest("PUT", "/api/storage/s3", bytes.NewBufferString("{}"))
	rr := httptest.NewRecorder()
	handler.handleS3Config(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", rr.Code)
	}
}

func TestS3ConfigHandler_TestConnectionUsesConfiguredDefaults(t *testing.T) {
	cfg := &config.AppConfig{S3: config.S3Config{Bucket: "net-configs", SecretKey: "stored-secret"}}
	handler := NewS3ConfigHandler(cfg, nil)

	var got S3TestRequest
	handler.checkBucket = func(req S3TestRequest) error {
		got = req
		return nil
	}

	body, _ := json.Marshal(map[string]string{"access_key": "AKIA"})
	req, _ := http.NewRequest("POST", "/api/storage/s3/test", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()
	handler.handleS3Test(rr, req)

	var response S3Response
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if !response.Success {
		t.Errorf("Expected success, got %q", response.Message)
	}
	if got.Bucket != "net-configs" || got.SecretAccessKey != "stored-secret" || got.Region != "us-east-1" {
		t.Errorf("Defaults not applied: %+v", got)
	}
	if got.AccessKeyID != "AKIA" {
		t.Errorf("Request value should win, got %q", got.AccessKeyID)
	}
}

func TestS3ConfigHandler_TestConnectionFailure(t *testing.T) {
	handler := NewS3ConfigHandler(&config.AppConfig{}, nil)
	handler.checkBucket = func(req S3TestRequest) error {
		return errors.New("AccessDenied")
	}

	body, _ := json.Marshal(map[string]string{"bucket": "other"})
	req, _ := http.NewRequest("POST", "/api/storage/s3/test", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()
	handler.handleS3Test(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
	var response S3Response
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if response.Success {
		t.Errorf("Expected success=false")
	}
}

func TestS3ConfigHandler_TestConnectionNeedsBucket(t *testing.T) {
	handler := NewS3ConfigHandler(&config.AppConfig{}, nil)

	req, _ := http.NewRequest("POST", "/api/storage/s3/test", bytes.NewBufferString("{}"))
	rr := httptest.NewRecorder()
	handler.handleS3Test(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
}
