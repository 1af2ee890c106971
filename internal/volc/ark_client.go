package volc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"colorcraft/internal/config"
)

const (
	defaultBase = "https://ark.cn-beijing.volces.com"

	// 1x1 PNG pixel base64
	mockPixel = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR4nGNgYAAAAAMAASsJTYQAAAAASUVORK5CYII="
)

// ErrMissingAPIKey 未配置凭证，在第一次远程调用时返回
var ErrMissingAPIKey = errors.New("ARK_API_KEY environment variable is missing")

// ErrNoImages 响应中没有图片数据
var ErrNoImages = errors.New("no images returned")

// ErrUnsupportedImage 图片不是 PNG 或 JPEG，导出时无法使用
var ErrUnsupportedImage = errors.New("unsupported image type")

// APIError 方舟接口返回的非2xx响应
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ark http %d: %s", e.StatusCode, e.Body)
}

type ArkClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Mock       bool
}

func NewArkClient(cfg config.ArkConfig) *ArkClient {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBase
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &ArkClient{
		BaseURL:    strings.TrimRight(base, "/"),
		APIKey:     cfg.APIKey,
		HTTPClient: &http.Client{Timeout: timeout},
		Mock:       cfg.Mock,
	}
}

// CheckCredential 校验凭证是否存在，mock模式不需要凭证
func (c *ArkClient) CheckCredential() error {
	if c.Mock || c.APIKey != "" {
		return nil
	}
	return ErrMissingAPIKey
}

type ImageGenParams struct {
	Model  string
	Prompt string
	Size   string
	Seed   int64
}

// GenerateImage 生成一张图片，返回 data URI
func (c *ArkClient) GenerateImage(ctx context.Context, p ImageGenParams) (string, error) {
	if c.Mock {
		return "data:image/png;base64," + mockPixel, nil
	}
	if err := c.CheckCredential(); err != nil {
		return "", err
	}
	if p.Model == "" {
		p.Model = "doubao-seedream-4.0"
	}
	if p.Size == "" {
		p.Size = "1728x2304"
	}
	body := map[string]any{
		"model":                       p.Model,
		"prompt":                      p.Prompt,
		"size":                        p.Size,
		"response_format":             "b64_json",
		"sequential_image_generation": "disabled",
		"watermark":                   false,
	}
	if p.Seed > 0 {
		body["seed"] = p.Seed
	}

	var resp struct {
		Data []struct {
			URL    string `json:"url"`
			B64    string `json:"b64_json"`
			Format string `json:"format"`
		} `json:"data"`
	}
	if err := c.postJSON(ctx, "/api/v3/images/generations", body, &resp); err != nil {
		return "", err
	}
	for _, d := range resp.Data {
		if d.B64 != "" {
			format := d.Format
			if format == "" {
				format = "jpeg"
			}
			mediaType, err := normalizeImageType("image/" + strings.ToLower(format))
			if err != nil {
				return "", err
			}
			return "data:" + mediaType + ";base64," + d.B64, nil
		}
		if d.URL != "" {
			return c.fetchDataURI(ctx, d.URL)
		}
	}
	return "", ErrNoImages
}

// fetchDataURI 下载图片并转成 data URI，导出PDF时需要原始字节
func (c *ArkClient) fetchDataURI(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", fmt.Errorf("download image: http %d", res.StatusCode)
	}
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", ErrNoImages
	}
	// 按内容识别优先，识别不出图片时才相信响应头
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		contentType = res.Header.Get("Content-Type")
	}
	mediaType, err := normalizeImageType(contentType)
	if err != nil {
		return "", err
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// normalizeImageType 去掉参数并统一写法，只接受 PNG 和 JPEG
func normalizeImageType(contentType string) (string, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedImage, contentType)
	}
	switch mediaType {
	case "image/jpeg", "image/jpg", "image/pjpeg":
		return "image/jpeg", nil
	case "image/png":
		return "image/png", nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedImage, mediaType)
}

func (c *ArkClient) postJSON(ctx context.Context, path string, body any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	logrus.WithField("url", req.URL.String()).Debug("ark request")

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	bodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &APIError{StatusCode: res.StatusCode, Body: strings.TrimSpace(string(bodyBytes))}
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("decode ark response: %w", err)
	}
	return nil
}
