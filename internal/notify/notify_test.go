package notify

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandler_SMS_Success(t *testing.T) {
	h := NewHandler()
	body, _ := json.Marshal(sendRequest{Recipient: "+15551234567", Message: "hello"})
	req := httptest.NewRequest(http.MethodPost, "/api/notify/sms", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.SMS(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp sendResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.ID == "" || resp.Channel != "sms" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestHandler_Email_Success(t *testing.T) {
	h := NewHandler()
	body, _ := json.Marshal(sendRequest{Recipient: "a@example.com", Message: "hi"})
	req := httptest.NewRequest(http.MethodPost, "/api/notify/email", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Email(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp sendResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Channel != "email" {
		t.Errorf("expected channel email, got %s", resp.Channel)
	}
}

func TestHandler_RejectsBlankRecipient(t *testing.T) {
	h := NewHandler()
	body, _ := json.Marshal(sendRequest{Recipient: "", Message: "hi"})
	req := httptest.NewRequest(http.MethodPost, "/api/notify/sms", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.SMS(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_RejectsBlankMessage(t *testing.T) {
	h := NewHandler()
	body, _ := json.Marshal(sendRequest{Recipient: "a@example.com", Message: ""})
	req := httptest.NewRequest(http.MethodPost, "/api/notify/email", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Email(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_RejectsMalformedJSON(t *testing.T) {
	h := NewHandler()
	req := httptest.NewRequest(http.MethodPost, "/api/notify/sms", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()

	h.SMS(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_TwoRequestsGetDistinctIDs(t *testing.T) {
	h := NewHandler()
	body, _ := json.Marshal(sendRequest{Recipient: "a@example.com", Message: "hi"})

	var ids []string
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/notify/email", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		h.Email(rec, req)
		var resp sendResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, resp.ID)
	}
	if ids[0] == ids[1] {
		t.Errorf("expected distinct ids across requests, got %q twice", ids[0])
	}
}

func TestHandler_IdempotencyKeyIsStableForSameContent(t *testing.T) {
	h := NewHandler()
	body, _ := json.Marshal(sendRequest{Recipient: "a@example.com", Message: "hi"})

	var keys []string
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/notify/email", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		h.Email(rec, req)
		var resp sendResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		keys = append(keys, resp.IdempotencyKey)
	}
	if keys[0] == "" || keys[0] != keys[1] {
		t.Errorf("expected stable idempotency key across identical requests, got %q and %q", keys[0], keys[1])
	}
}

func TestHandler_IdempotencyKeyDiffersAcrossChannels(t *testing.T) {
	h := NewHandler()
	body, _ := json.Marshal(sendRequest{Recipient: "a@example.com", Message: "hi"})

	smsReq := httptest.NewRequest(http.MethodPost, "/api/notify/sms", bytes.NewReader(body))
	smsRec := httptest.NewRecorder()
	h.SMS(smsRec, smsReq)
	var smsResp sendResponse
	if err := json.Unmarshal(smsRec.Body.Bytes(), &smsResp); err != nil {
		t.Fatal(err)
	}

	emailReq := httptest.NewRequest(http.MethodPost, "/api/notify/email", bytes.NewReader(body))
	emailRec := httptest.NewRecorder()
	h.Email(emailRec, emailReq)
	var emailResp sendResponse
	if err := json.Unmarshal(emailRec.Body.Bytes(), &emailResp); err != nil {
		t.Fatal(err)
	}

	if smsResp.IdempotencyKey == emailResp.IdempotencyKey {
		t.Error("expected idempotency key to vary by channel for the same recipient/message")
	}
}
