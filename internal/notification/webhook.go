package notification

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Notifier 外部通知通道接口
type Notifier interface {
	SendAlert(title, content string) error
}

// FeishuNotifier 飞书群机器人通知
type FeishuNotifier struct {
	WebhookURL string
	Secret     string
}

// NewFeishuNotifier 创建飞书通知器
func NewFeishuNotifier(webhookURL, secret string) *FeishuNotifier {
	return &FeishuNotifier{
		WebhookURL: webhookURL,
		Secret:     secret,
	}
}

// SendAlert 发送飞书卡片消息
func (n *FeishuNotifier) SendAlert(title, content string) error {
	timestamp := time.Now().Unix()
	sign := n.genSign(timestamp)

	message := map[string]interface{}{
		"timestamp": fmt.Sprintf("%d", timestamp),
		"sign":      sign,
		"msg_type":  "interactive",
		"card": map[string]interface{}{
			"header": map[string]interface{}{
				"title": map[string]interface{}{
					"tag":     "plain_text",
					"content": title,
				},
				"template": "blue",
			},
			"elements": []map[string]interface{}{
				{
					"tag": "div",
					"text": map[string]interface{}{
						"content": content,
						"tag":     "lark_md",
					},
				},
				{
					"tag": "note",
					"elements": []map[string]interface{}{
						{
							"tag":     "plain_text",
							"content": fmt.Sprintf("通知时间: %s", time.Now().Format("2006-01-02 15:04:05")),
						},
					},
				},
			},
		},
	}

	return n.sendRequest(message)
}

// genSign 生成飞书签名
func (n *FeishuNotifier) genSign(timestamp int64) string {
	if n.Secret == "" {
		return ""
	}

	stringToSign := fmt.Sprintf("%v", timestamp) + "\n" + n.Secret
	var data []byte
	h := hmac.New(sha256.New, []byte(stringToSign))
	h.Write(data)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// sendRequest 发送HTTP请求
func (n *FeishuNotifier) sendRequest(message map[string]interface{}) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal message failed: %v", err)
	}

	resp, err := http.Post(n.WebhookURL, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("send request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		errorMsg := fmt.Sprintf("feishu returned non-200 status: %d", resp.StatusCode)
		if len(respBody) > 0 {
			errorMsg += fmt.Sprintf(", response: %s", string(respBody))
		}
		return fmt.Errorf("%s", errorMsg)
	}

	// 飞书即使返回 200，也可能在响应体中包含错误码
	if len(respBody) > 0 {
		var feishuResp map[string]interface{}
		if err := json.Unmarshal(respBody, &feishuResp); err == nil {
			if code, ok := feishuResp["code"].(float64); ok && code != 0 {
				msg := "unknown error"
				if msgVal, ok := feishuResp["msg"].(string); ok {
					msg = msgVal
				}
				return fmt.Errorf("feishu returned error code: %.0f, msg: %s", code, msg)
			}
		}
	}

	return nil
}

// DingTalkNotifier 钉钉群机器人通知
type DingTalkNotifier struct {
	WebhookURL string
	Secret     string
}

// NewDingTalkNotifier 创建钉钉通知器
func NewDingTalkNotifier(webhookURL, secret string) *DingTalkNotifier {
	return &DingTalkNotifier{
		WebhookURL: webhookURL,
		Secret:     secret,
	}
}

// SendAlert 发送钉钉Markdown消息
func (n *DingTalkNotifier) SendAlert(title, content string) error {
	timestamp := time.Now().UnixNano() / 1e6
	sign := n.genSign(timestamp)

	message := map[string]interface{}{
		"msgtype": "markdown",
		"markdown": map[string]interface{}{
			"title": title,
			"text":  content,
		},
		"at": map[string]interface{}{
			"isAtAll": false,
		},
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal message failed: %v", err)
	}

	url := n.WebhookURL
	if n.Secret != "" {
		url = fmt.Sprintf("%s&timestamp=%d&sign=%s", url, timestamp, sign)
	}

	resp, err := http.Post(url, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("send request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("dingtalk returned non-200 status: %d", resp.StatusCode)
	}

	return nil
}

// genSign 生成钉钉签名
func (n *DingTalkNotifier) genSign(timestamp int64) string {
	if n.Secret == "" {
		return ""
	}

	stringToSign := fmt.Sprintf("%d\n%s", timestamp, n.Secret)
	h := hmac.New(sha256.New, []byte(n.Secret))
	h.Write([]byte(stringToSign))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
