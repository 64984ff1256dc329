package authorization

import (
	"strings"
	"time"

	"github.com/mojocn/base64Captcha"
)

// Digit captcha geometry. Registration is done by parents, so four digits on a
// small canvas is enough friction against scripted signups.
const (
	captchaHeight    = 60
	captchaWidth     = 160
	captchaDigits    = 4
	captchaSkew      = 0.7
	captchaDotCount  = 80
	captchaStoreSize = 2048
)

// CaptchaChallenge is one issued captcha image, ready for a JSON response.
type CaptchaChallenge struct {
	ID          string
	ImageBase64 string
	ExpiresAt   time.Time
	TTL         time.Duration
}

// CaptchaStore issues and verifies registration captchas backed by an
// in-memory answer store.
type CaptchaStore struct {
	captcha *base64Captcha.Captcha
	ttl     time.Duration
}

func NewCaptchaStore(ttl time.Duration) *CaptchaStore {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	driver := base64Captcha.NewDriverDigit(captchaHeight, captchaWidth, captchaDigits, captchaSkew, captchaDotCount)
	store := base64Captcha.NewMemoryStore(captchaStoreSize, ttl)
	return &CaptchaStore{
		captcha: base64Captcha.NewCaptcha(driver, store),
		ttl:     ttl,
	}
}

// Issue generates a fresh challenge. A generation failure yields a zero
// challenge; the handler treats an empty ID as an internal error.
func (s *CaptchaStore) Issue() CaptchaChallenge {
	if s == nil {
		return CaptchaChallenge{}
	}

	id, image, _, err := s.captcha.Generate()
	if err != nil {
		return CaptchaChallenge{}
	}

	if image != "" && !strings.HasPrefix(image, "data:") {
		image = "data:image/png;base64," + image
	}

	return CaptchaChallenge{
		ID:          id,
		ImageBase64: image,
		ExpiresAt:   time.Now().Add(s.ttl),
		TTL:         s.ttl,
	}
}

// Verify consumes the answer for the given challenge ID. Answers are single
// use; a second verify with the same ID fails.
func (s *CaptchaStore) Verify(id, answer string) bool {
	if s == nil {
		return true
	}

	id = strings.TrimSpace(id)
	answer = strings.TrimSpace(answer)
	if id == "" || answer == "" {
		return false
	}
	return s.captcha.Verify(id, answer, true)
}
