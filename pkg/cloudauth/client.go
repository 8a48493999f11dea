// Package cloudauth implements the signed Unitree cloud HTTP API used for
// Remote connections: email/password login, public-key fetch, TURN
// credential exchange, and SDP relay, plus the per-request header signing
// scheme ("AppSign") the API requires of every call.
package cloudauth

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ethan/go2-webrtc-driver/pkg/crypto"
	"github.com/ethan/go2-webrtc-driver/pkg/driverr"
	"github.com/ethan/go2-webrtc-driver/pkg/logger"
)

const (
	baseURL        = "https://global-robot-api.unitree.com/"
	appSignSecret  = "XyvkwK45hp5PHfA8"
	umChannelKey   = "UMENG_CHANNEL"
	tokenExpiryBuf = 30 * time.Second
)

// Client talks to the Unitree cloud API on behalf of one account.
type Client struct {
	email      string
	password   string
	httpClient *http.Client
	logger     *logger.Logger

	mu          sync.RWMutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient builds a cloud auth client for the given account.
func NewClient(email, password string, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Default()
	}
	return &Client{
		email:    email,
		password: password,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: log,
	}
}

// request performs a single signed call against the cloud API, matching
// the header set and URL-encoded body the vendor Android client sends.
func (c *Client) request(ctx context.Context, path string, body map[string]string, token, method string) (map[string]any, error) {
	timestampMs := time.Now().UnixMilli()
	appTimestamp := fmt.Sprintf("%d", timestampMs)
	appNonce := crypto.MD5Hex(appTimestamp)
	appSign := crypto.MD5Hex(appSignSecret + appTimestamp + appNonce)

	_, offset := time.Now().Zone()
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	appTimezone := fmt.Sprintf("GMT%s%02d:%02d", sign, offset/3600, (offset%3600)/60)

	values := url.Values{}
	for k, v := range body {
		values.Set(k, v)
	}

	var req *http.Request
	var err error
	fullURL := baseURL + path
	if method == http.MethodGet {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, fullURL+"?"+values.Encode(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bytes.NewReader([]byte(values.Encode())))
	}
	if err != nil {
		return nil, fmt.Errorf("build cloud request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("DeviceId", "Samsung/GalaxyS20/SM-G981B/s20/10/29")
	req.Header.Set("AppTimezone", appTimezone)
	req.Header.Set("DevicePlatform", "Android")
	req.Header.Set("DeviceModel", "SM-G981B")
	req.Header.Set("SystemVersion", "29")
	req.Header.Set("AppVersion", "1.8.0")
	req.Header.Set("AppLocale", "en_US")
	req.Header.Set("AppTimestamp", appTimestamp)
	req.Header.Set("AppNonce", appNonce)
	req.Header.Set("AppSign", appSign)
	req.Header.Set("Channel", umChannelKey)
	req.Header.Set("Token", token)
	req.Header.Set("AppName", "Go2")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, driverr.Wrap(driverr.RemoteSignaling, err, "cloud API request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, driverr.Wrap(driverr.RemoteSignaling, err, "read cloud API response")
	}

	var decoded map[string]any
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, driverr.Wrap(driverr.RemoteSignaling, err, "decode cloud API response")
	}
	return decoded, nil
}

// Login exchanges email/password for an access token.
func (c *Client) Login(ctx context.Context) (string, error) {
	c.logger.Info("obtaining cloud access token")
	resp, err := c.request(ctx, "login/email", map[string]string{
		"email":    c.email,
		"password": crypto.MD5Hex(c.password),
	}, "", http.MethodPost)
	if err != nil {
		return "", err
	}

	code, _ := resp["code"].(float64)
	if int(code) != 100 {
		return "", driverr.New(driverr.RemoteAuth, fmt.Sprintf("login failed: %v", resp))
	}
	data, _ := resp["data"].(map[string]any)
	token, _ := data["accessToken"].(string)
	if token == "" {
		return "", driverr.New(driverr.RemoteAuth, "login response missing accessToken")
	}

	c.mu.Lock()
	c.accessToken = token
	c.tokenExpiry = time.Now().Add(1 * time.Hour)
	c.mu.Unlock()

	return token, nil
}

// Token returns a cached access token, refreshing it if it is near expiry.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.RLock()
	token := c.accessToken
	expiry := c.tokenExpiry
	c.mu.RUnlock()

	if token != "" && time.Until(expiry) > tokenExpiryBuf {
		return token, nil
	}
	return c.Login(ctx)
}

// FetchPublicKey retrieves the cloud API's current RSA public key.
func (c *Client) FetchPublicKey(ctx context.Context) (*rsa.PublicKey, error) {
	c.logger.Info("obtaining cloud public key")
	resp, err := c.request(ctx, "system/pubKey", map[string]string{}, "", http.MethodGet)
	if err != nil {
		return nil, err
	}

	code, _ := resp["code"].(float64)
	if int(code) != 100 {
		return nil, driverr.New(driverr.RemoteSignaling, fmt.Sprintf("fetch public key failed: %v", resp))
	}
	pemData, _ := resp["data"].(string)
	return crypto.RSALoadPublicKey(pemData)
}

// FetchTurnServerInfo retrieves TURN credentials for serial, encrypted
// under a fresh AES key sent via the RSA public key.
func (c *Client) FetchTurnServerInfo(ctx context.Context, serial, token string, pub *rsa.PublicKey) (*TurnServerInfo, error) {
	c.logger.Info("obtaining TURN server info", "serial", serial)
	aesKey, err := crypto.GenerateAESKey()
	if err != nil {
		return nil, err
	}
	sk, err := crypto.RSAEncrypt(aesKey, pub)
	if err != nil {
		return nil, err
	}

	resp, err := c.request(ctx, "webrtc/account", map[string]string{
		"sn": serial,
		"sk": sk,
	}, token, http.MethodPost)
	if err != nil {
		return nil, err
	}

	code, _ := resp["code"].(float64)
	if int(code) != 100 {
		return nil, driverr.New(driverr.RemoteSignaling, fmt.Sprintf("fetch TURN info failed: %v", resp))
	}
	encrypted, _ := resp["data"].(string)
	plain, err := crypto.AESDecrypt(encrypted, aesKey)
	if err != nil {
		return nil, err
	}

	var info TurnServerInfo
	if err := json.Unmarshal([]byte(plain), &info); err != nil {
		return nil, driverr.Wrap(driverr.RemoteSignaling, err, "decode TURN server info")
	}
	return &info, nil
}

// SendSDP relays a local SDP offer to the robot via the cloud and returns
// the decrypted SDP answer JSON.
func (c *Client) SendSDP(ctx context.Context, serial, sdpOfferJSON, token string, pub *rsa.PublicKey) (string, error) {
	c.logger.Info("sending SDP to robot via cloud relay", "serial", serial)
	aesKey, err := crypto.GenerateAESKey()
	if err != nil {
		return "", err
	}
	sk, err := crypto.RSAEncrypt(aesKey, pub)
	if err != nil {
		return "", err
	}
	encryptedSDP, err := crypto.AESEncrypt(sdpOfferJSON, aesKey)
	if err != nil {
		return "", err
	}

	resp, err := c.request(ctx, "webrtc/connect", map[string]string{
		"sn":      serial,
		"sk":      sk,
		"data":    encryptedSDP,
		"timeout": "5",
	}, token, http.MethodPost)
	if err != nil {
		return "", err
	}

	code, _ := resp["code"].(float64)
	switch int(code) {
	case 100:
		encrypted, _ := resp["data"].(string)
		return crypto.AESDecrypt(encrypted, aesKey)
	case 1000:
		return "", driverr.New(driverr.DeviceOffline, "robot is not online")
	default:
		return "", driverr.New(driverr.RemoteSignaling, fmt.Sprintf("SDP relay failed: %v", resp))
	}
}
