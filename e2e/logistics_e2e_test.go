//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"testing"
	"time"

	logisticsgrpc "github.com/vibast-solutions/ms-go-logistics/app/grpc"
	"github.com/vibast-solutions/ms-go-logistics/app/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	defaultLogisticsHTTPBase = "http://localhost:48081"
	defaultLogisticsGRPCAddr = "localhost:49091"
)

type httpClient struct {
	baseURL string
	client  *http.Client
}

func newHTTPClient(baseURL string) *httpClient {
	return &httpClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *httpClient) doJSON(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	return c.doJSONWithAPIKey(t, method, path, body, logisticsCallerAPIKey())
}

func (c *httpClient) doJSONWithAPIKey(t *testing.T, method, path string, body any, apiKey string) (*http.Response, []byte) {
	t.Helper()

	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json marshal failed: %v", err)
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		t.Fatalf("new request failed: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", fmt.Sprintf("e2e-http-%d", time.Now().UnixNano()))
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	return c.do(t, req)
}

// postWebhook sends a raw gateway notification without request id or api key.
func (c *httpClient) postWebhook(t *testing.T, path string, body []byte, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.do(t, req)
}

func (c *httpClient) do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()

	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("http request failed: %v", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response failed: %v", err)
	}

	return resp, bodyBytes
}

func waitForHTTP(baseURL string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: 2 * time.Second}
	for time.Now().Before(deadline) {
		resp, err := client.Get(baseURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("http service not ready at %s", baseURL)
}

func waitForGRPC(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("grpc service not ready at %s", addr)
}

func dialLogisticsGRPC(t *testing.T, addr string) *grpc.ClientConn {
	t.Helper()
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc dial failed: %v", err)
	}
	return conn
}

func grpcContextWithHeaders(apiKey, requestID string) context.Context {
	ctx := context.Background()
	if requestID != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "x-request-id", requestID)
	}
	if apiKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "x-api-key", apiKey)
	}
	return ctx
}

func TestLogisticsE2E(t *testing.T) {
	httpBase := os.Getenv("LOGISTICS_HTTP_URL")
	if httpBase == "" {
		httpBase = defaultLogisticsHTTPBase
	}
	grpcAddr := os.Getenv("LOGISTICS_GRPC_ADDR")
	if grpcAddr == "" {
		grpcAddr = defaultLogisticsGRPCAddr
	}

	if err := waitForHTTP(httpBase, 30*time.Second); err != nil {
		t.Fatalf("http not ready: %v", err)
	}
	if err := waitForGRPC(grpcAddr, 30*time.Second); err != nil {
		t.Fatalf("grpc not ready: %v", err)
	}

	client := newHTTPClient(httpBase)
	conn := dialLogisticsGRPC(t, grpcAddr)
	defer conn.Close()
	progressClient := logisticsgrpc.NewCampaignProgressClient(conn)

	clientID := fmt.Sprintf("e2e-client-%d", time.Now().UnixNano())
	webhookSecret := "e2e-asset-token"

	t.Run("HTTPMissingRequestID", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, httpBase+"/admin/gateways", nil)
		if err != nil {
			t.Fatalf("new request failed: %v", err)
		}
		req.Header.Set("X-API-Key", logisticsCallerAPIKey())
		resp, _ := client.do(t, req)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400 for missing x-request-id, got %d", resp.StatusCode)
		}
	})

	t.Run("HTTPUnauthorizedMissingAPIKey", func(t *testing.T) {
		resp, _ := client.doJSONWithAPIKey(t, http.MethodGet, "/admin/gateways", nil, "")
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401 for missing x-api-key, got %d", resp.StatusCode)
		}
	})

	t.Run("HTTPForbiddenInsufficientAccess", func(t *testing.T) {
		resp, _ := client.doJSONWithAPIKey(t, http.MethodGet, "/admin/gateways", nil, logisticsNoAccessAPIKey())
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("expected 403 for insufficient access, got %d", resp.StatusCode)
		}
	})

	t.Run("HTTPListGateways", func(t *testing.T) {
		resp, body := client.doJSON(t, http.MethodGet, "/admin/gateways", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d body=%s", resp.StatusCode, string(body))
		}
		var payload types.ListGatewaysResponse
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("unmarshal gateways failed: %v body=%s", err, string(body))
		}
		if len(payload.Gateways) != 3 {
			t.Fatalf("expected 3 gateways, got %d", len(payload.Gateways))
		}
	})

	t.Run("HTTPCreateGatewayConfig", func(t *testing.T) {
		resp, body := client.doJSON(t, http.MethodPost, "/admin/gateway-configs", map[string]any{
			"client_id":      clientID,
			"provider":       "asset",
			"gateway_id":     "gw-e2e",
			"webhook_secret": webhookSecret,
			"settings":       map[string]any{"apiKey": "asaas_e2e_key", "apiUrl": "https://sandbox.asaas.com/api/v3"},
		})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("expected 201, got %d body=%s", resp.StatusCode, string(body))
		}
		if bytes.Contains(body, []byte(webhookSecret)) || bytes.Contains(body, []byte("asaas_e2e_key")) {
			t.Fatalf("expected secrets to be masked, body=%s", string(body))
		}
	})

	t.Run("HTTPGatewayConfigNotFound", func(t *testing.T) {
		resp, body := client.doJSON(t, http.MethodGet, "/admin/gateway-configs/"+clientID+"/stripe", nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("expected 404, got %d body=%s", resp.StatusCode, string(body))
		}
	})

	t.Run("WebhookRejectsBadSignature", func(t *testing.T) {
		resp, body := client.postWebhook(t, "/webhook/asset?client_id="+clientID, []byte(`{"event":"PAYMENT_RECEIVED","payment":{"id":"pay_1","status":"RECEIVED"}}`), map[string]string{
			"asaas-access-token": "wrong",
		})
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("expected 403, got %d body=%s", resp.StatusCode, string(body))
		}
	})

	t.Run("WebhookAcceptsUnknownPayload", func(t *testing.T) {
		resp, body := client.postWebhook(t, "/webhook/asset?client_id="+clientID, []byte(`{"hello":"world"}`), map[string]string{
			"asaas-access-token": webhookSecret,
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d body=%s", resp.StatusCode, string(body))
		}
		var payload types.WebhookResponse
		if err := json.Unmarshal(body, &payload); err != nil || !payload.Received {
			t.Fatalf("expected received=true, got %s", string(body))
		}
	})

	t.Run("WebhookUnknownProvider", func(t *testing.T) {
		resp, body := client.postWebhook(t, "/webhook/paypal?client_id="+clientID, []byte(`{}`), nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d body=%s", resp.StatusCode, string(body))
		}
	})

	t.Run("HTTPCampaignETA", func(t *testing.T) {
		resp, body := client.doJSON(t, http.MethodGet, "/campaigns/eta?total_leads=900&rate=90&batch_size=50", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d body=%s", resp.StatusCode, string(body))
		}
		var payload types.CampaignETAResponse
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("unmarshal eta failed: %v", err)
		}
		if payload.EstimatedDurationSeconds != 10 {
			t.Fatalf("expected 10 seconds, got %d", payload.EstimatedDurationSeconds)
		}
	})

	campaignID := fmt.Sprintf("e2e-campaign-%d", time.Now().UnixNano())

	t.Run("HTTPStartCampaign", func(t *testing.T) {
		resp, body := client.doJSON(t, http.MethodPost, "/campaigns", map[string]any{
			"campaign_id":           campaignID,
			"user_id":               "e2e-user",
			"leads":                 []map[string]string{{"email": "ana@example.com", "nome": "Ana"}},
			"rate_limit_per_second": 1,
			"campaign_config":       map[string]any{"subject_template": "Oi {{nome}}", "html_template": "<p>{{nome}}</p>"},
		})
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("expected 202, got %d body=%s", resp.StatusCode, string(body))
		}
		var payload types.CampaignStartedResponse
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("unmarshal start failed: %v", err)
		}
		if payload.CampaignID != campaignID || payload.TotalLeads != 1 {
			t.Fatalf("unexpected start response: %s", string(body))
		}
	})

	t.Run("HTTPCancelCampaign", func(t *testing.T) {
		resp, body := client.doJSON(t, http.MethodPost, "/campaigns/"+campaignID+"/cancel", nil)
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusConflict {
			t.Fatalf("expected 200 or 409, got %d body=%s", resp.StatusCode, string(body))
		}
	})

	t.Run("GRPCWatchEndsOnTerminalCampaign", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(grpcContextWithHeaders(logisticsCallerAPIKey(), fmt.Sprintf("e2e-grpc-%d", time.Now().UnixNano())), 10*time.Second)
		defer cancel()

		stream, err := progressClient.Watch(ctx, campaignID)
		if err != nil {
			t.Fatalf("watch failed: %v", err)
		}
		for {
			msg, err := stream.Recv()
			if err == io.EOF {
				return
			}
			if err != nil {
				t.Fatalf("recv failed: %v", err)
			}
			if msg.GetFields()["campaign_id"].GetStringValue() != campaignID {
				t.Fatalf("unexpected snapshot: %v", msg)
			}
		}
	})

	t.Run("GRPCMissingRequestID", func(t *testing.T) {
		_, err := progressClient.Get(grpcContextWithHeaders(logisticsCallerAPIKey(), ""), campaignID)
		if status.Code(err) != codes.InvalidArgument {
			t.Fatalf("expected InvalidArgument for missing x-request-id, got %v", err)
		}
	})

	t.Run("GRPCUnauthorizedMissingAPIKey", func(t *testing.T) {
		_, err := progressClient.Get(grpcContextWithHeaders("", fmt.Sprintf("e2e-grpc-no-auth-%d", time.Now().UnixNano())), campaignID)
		if status.Code(err) != codes.Unauthenticated {
			t.Fatalf("expected Unauthenticated, got %v", err)
		}
	})

	t.Run("GRPCForbiddenInsufficientAccess", func(t *testing.T) {
		_, err := progressClient.Get(grpcContextWithHeaders(logisticsNoAccessAPIKey(), fmt.Sprintf("e2e-grpc-forbidden-%d", time.Now().UnixNano())), campaignID)
		if status.Code(err) != codes.PermissionDenied {
			t.Fatalf("expected PermissionDenied, got %v", err)
		}
	})

	t.Run("GRPCGetNotFound", func(t *testing.T) {
		_, err := progressClient.Get(grpcContextWithHeaders(logisticsCallerAPIKey(), fmt.Sprintf("e2e-grpc-%d", time.Now().UnixNano())), "missing-campaign")
		if status.Code(err) != codes.NotFound {
			t.Fatalf("expected NotFound, got %v", err)
		}
	})

	t.Run("GRPCHealthWithoutHeaders", func(t *testing.T) {
		res, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
		if err != nil {
			t.Fatalf("health check failed: %v", err)
		}
		if res.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			t.Fatalf("expected SERVING, got %v", res.GetStatus())
		}
	})
}
