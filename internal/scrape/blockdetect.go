package scrape

import (
	"bytes"
	"net/http"
)

// BlockType describes the kind of anti-bot interstitial a page appears to be.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
)

// jsShellMaxBytes bounds the size of pages considered JavaScript shells.
const jsShellMaxBytes = 2000

var (
	cloudflareMarkers = [][]byte{[]byte("checking your browser"), []byte("cf-browser-verification"), []byte("cf-challenge")}
	captchaMarkers    = [][]byte{[]byte("captcha")} // covers recaptcha and hcaptcha
)

// DetectBlock classifies a response that is likely an anti-bot page rather
// than real content. Such pages still flow through the pipeline; the result
// is an annotation for logs and reports.
func DetectBlock(status int, header http.Header, body []byte) BlockType {
	if status == http.StatusForbidden || status == http.StatusServiceUnavailable {
		if header.Get("Cf-Ray") != "" || header.Get("Cf-Cache-Status") != "" ||
			bytes.EqualFold([]byte(header.Get("Server")), []byte("cloudflare")) {
			return BlockCloudflare
		}
	}

	lower := bytes.ToLower(body)
	if containsAny(lower, cloudflareMarkers) {
		return BlockCloudflare
	}
	if containsAny(lower, captchaMarkers) {
		return BlockCaptcha
	}
	if len(body) < jsShellMaxBytes &&
		(bytes.Contains(lower, []byte("<noscript")) && bytes.Contains(lower, []byte("javascript")) ||
			bytes.Contains(lower, []byte(`http-equiv="refresh"`))) {
		return BlockJSShell
	}
	return BlockNone
}

func containsAny(b []byte, markers [][]byte) bool {
	for _, m := range markers {
		if bytes.Contains(b, m) {
			return true
		}
	}
	return false
}
