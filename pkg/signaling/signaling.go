// Package signaling implements SDP exchange with a Go2 over the network:
// the cloud relay transport (delegating to pkg/cloudauth), and the two
// local HTTP handshake variants the robot's firmware has shipped with
// ("old" plain POST, and "new" public-key-derived path), tried in that
// order with automatic fallback.
package signaling

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethan/go2-webrtc-driver/pkg/crypto"
	"github.com/ethan/go2-webrtc-driver/pkg/driverr"
	"github.com/ethan/go2-webrtc-driver/pkg/logger"
)

// Offer is the SDP offer envelope sent to the robot over any transport.
type Offer struct {
	ID    string `json:"id"`
	SDP   string `json:"sdp"`
	Type  string `json:"type"`
	Token string `json:"token,omitempty"`
}

// Answer is the SDP answer the robot returns.
type Answer struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

// LocalClient exchanges SDP with a robot reachable on the LAN.
type LocalClient struct {
	httpClient *http.Client
	logger     *logger.Logger
}

// NewLocalClient builds a LocalClient.
func NewLocalClient(log *logger.Logger) *LocalClient {
	if log == nil {
		log = logger.Default()
	}
	return &LocalClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     log,
	}
}

// Negotiate sends offer to ip, trying the legacy handshake first and
// falling back to the newer public-key handshake if it fails.
func (c *LocalClient) Negotiate(ctx context.Context, ip string, offer Offer) (*Answer, error) {
	c.logger.DebugSignaling("trying legacy local signaling method", "ip", ip)
	answer, err := c.negotiateLegacy(ctx, ip, offer)
	if err == nil {
		return answer, nil
	}
	c.logger.Warn("legacy local signaling method failed, trying new method", "ip", ip, "err", err)

	answer, err = c.negotiateNew(ctx, ip, offer)
	if err != nil {
		return nil, driverr.Wrap(driverr.LocalSignaling, err, "both local signaling methods failed")
	}
	return answer, nil
}

// negotiateLegacy is the original plain-HTTP SDP exchange: POST the offer
// JSON to :8081/offer and read back the answer JSON.
func (c *LocalClient) negotiateLegacy(ctx context.Context, ip string, offer Offer) (*Answer, error) {
	payload, err := json.Marshal(offer)
	if err != nil {
		return nil, fmt.Errorf("marshal offer: %w", err)
	}

	url := fmt.Sprintf("http://%s:8081/offer", ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build legacy signaling request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("legacy signaling request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read legacy signaling response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("legacy signaling failed: status %d", resp.StatusCode)
	}

	var answer Answer
	if err := json.Unmarshal(body, &answer); err != nil {
		return nil, fmt.Errorf("decode legacy signaling answer: %w", err)
	}
	return &answer, nil
}

type conNotifyResponse struct {
	Data1 string `json:"data1"`
}

// negotiateNew is the public-key-derived handshake: GET :9991/con_notify
// for a base64+JSON envelope carrying an embedded RSA public key and a
// path-suffix seed, then POST the AES-encrypted offer to the derived
// :9991/con_ing_<suffix> path.
func (c *LocalClient) negotiateNew(ctx context.Context, ip string, offer Offer) (*Answer, error) {
	notifyURL := fmt.Sprintf("http://%s:9991/con_notify", ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, notifyURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build con_notify request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("con_notify request: %w", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read con_notify response: %w", err)
	}

	decoded, err := base64.StdEncoding.DecodeString(string(body))
	if err != nil {
		return nil, driverr.Wrap(driverr.MalformedCipherText, err, "decode con_notify body")
	}

	var notify conNotifyResponse
	if err := json.Unmarshal(decoded, &notify); err != nil {
		return nil, fmt.Errorf("decode con_notify json: %w", err)
	}
	if len(notify.Data1) < 20 {
		return nil, driverr.New(driverr.MalformedCipherText, "con_notify data1 too short")
	}

	publicKeyPEM := notify.Data1[10 : len(notify.Data1)-10]
	pathEnding := calcLocalPathEnding(notify.Data1)

	pub, err := crypto.RSALoadPublicKey(publicKeyPEM)
	if err != nil {
		return nil, err
	}

	aesKey, err := crypto.GenerateAESKey()
	if err != nil {
		return nil, err
	}

	offerJSON, err := json.Marshal(offer)
	if err != nil {
		return nil, fmt.Errorf("marshal offer: %w", err)
	}
	data1, err := crypto.AESEncrypt(string(offerJSON), aesKey)
	if err != nil {
		return nil, err
	}
	data2, err := crypto.RSAEncrypt(aesKey, pub)
	if err != nil {
		return nil, err
	}

	reqBody, err := json.Marshal(map[string]string{"data1": data1, "data2": data2})
	if err != nil {
		return nil, fmt.Errorf("marshal con_ing request: %w", err)
	}

	ingURL := fmt.Sprintf("http://%s:9991/con_ing_%s", ip, pathEnding)
	ingReq, err := http.NewRequestWithContext(ctx, http.MethodPost, ingURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("build con_ing request: %w", err)
	}
	ingReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	ingResp, err := c.httpClient.Do(ingReq)
	if err != nil {
		return nil, fmt.Errorf("con_ing request: %w", err)
	}
	defer ingResp.Body.Close()
	ingBody, err := io.ReadAll(ingResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read con_ing response: %w", err)
	}

	decryptedAnswer, err := crypto.AESDecrypt(string(ingBody), aesKey)
	if err != nil {
		return nil, err
	}

	var answer Answer
	if err := json.Unmarshal([]byte(decryptedAnswer), &answer); err != nil {
		return nil, fmt.Errorf("decode con_ing answer: %w", err)
	}
	return &answer, nil
}

var pathEndingAlphabet = [...]byte{'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H', 'I', 'J'}

// calcLocalPathEnding derives the :9991/con_ing_<suffix> path suffix from
// the last 10 characters of con_notify's data1 field: split into 2-char
// chunks, map each chunk's second character to its index in A..J, and
// concatenate the indices as decimal digits.
func calcLocalPathEnding(data1 string) string {
	last10 := data1[len(data1)-10:]

	var b strings.Builder
	for i := 0; i+1 < len(last10); i += 2 {
		second := last10[i+1]
		for idx, ch := range pathEndingAlphabet {
			if byte(ch) == second {
				fmt.Fprintf(&b, "%d", idx)
				break
			}
		}
	}
	return b.String()
}
