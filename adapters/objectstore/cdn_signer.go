package objectstore

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/cloudfront/sign"

	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/internal/config"
)

type cloudFrontSigner struct {
	baseURL string
	signer  *sign.URLSigner
}

// NewCloudFrontSigner loads the PEM private key from config.
func NewCloudFrontSigner(cfg config.Config) (service.CDNSigner, error) {
	if cfg.CDN.Distribution == "" || cfg.CDN.KeyID == "" {
		return nil, fmt.Errorf("cloudfront distribution and key id are required")
	}
	key, err := sign.LoadPEMPrivKey(strings.NewReader(cfg.CDN.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("cannot load cloudfront private key: %w", err)
	}
	return &cloudFrontSigner{
		baseURL: distributionURL(cfg.CDN.Distribution),
		signer:  sign.NewURLSigner(cfg.CDN.KeyID, key),
	}, nil
}

func distributionURL(dist string) string {
	if strings.HasPrefix(dist, "https://") || strings.HasPrefix(dist, "http://") {
		return strings.TrimSuffix(dist, "/")
	}
	if strings.Contains(dist, ".") {
		return "https://" + strings.TrimSuffix(dist, "/")
	}
	return fmt.Sprintf("https://%s.cloudfront.net", dist)
}

func (s *cloudFrontSigner) SignedURL(key string, expires time.Time) (string, error) {
	raw := s.baseURL + "/" + (&url.URL{Path: strings.TrimPrefix(key, "/")}).EscapedPath()
	signed, err := s.signer.Sign(raw, expires)
	if err != nil {
		return "", fmt.Errorf("sign cloudfront url: %w", err)
	}
	return signed, nil
}
