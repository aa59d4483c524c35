package backup

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path"
	"strings"
)

const defaultS3Region = "eu-central-1"

// S3Config holds the destination and static credentials for snapshot uploads.
type S3Config struct {
	BucketURL    string
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	SessionToken string
	UseSSL       bool
}

// S3Uploader copies snapshots to an S3-compatible bucket with `aws s3 cp`.
type S3Uploader struct {
	bucket    string
	keyPrefix string
	cfg       S3Config
}

// NewS3Uploader parses BucketURL (s3://bucket/optional/prefix) and checks
// credentials and the aws binary up front.
func NewS3Uploader(cfg S3Config) (*S3Uploader, error) {
	bucket, prefix, err := parseS3BucketURL(cfg.BucketURL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.AccessKey) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("s3: access key and secret key are required")
	}
	if _, err := exec.LookPath("aws"); err != nil {
		return nil, errors.New("s3: aws cli not found in PATH")
	}
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = defaultS3Region
	}
	return &S3Uploader{bucket: bucket, keyPrefix: prefix, cfg: cfg}, nil
}

// UploadFile copies localPath to the bucket under the configured prefix.
func (u *S3Uploader) UploadFile(ctx context.Context, localPath string) error {
	cmd := exec.CommandContext(ctx, "aws", u.args(localPath)...)
	cmd.Env = append(os.Environ(), u.env()...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("s3: upload %s: %w: %s", path.Base(localPath), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// objectURL is the s3:// destination for a local snapshot.
func (u *S3Uploader) objectURL(localPath string) string {
	key := path.Base(localPath)
	if u.keyPrefix != "" {
		key = path.Join(u.keyPrefix, key)
	}
	return "s3://" + u.bucket + "/" + key
}

func (u *S3Uploader) args(localPath string) []string {
	args := []string{"s3", "cp", localPath, u.objectURL(localPath), "--region", u.cfg.Region, "--only-show-errors"}
	if endpoint := normalizeEndpoint(u.cfg.Endpoint, u.cfg.UseSSL); endpoint != "" {
		args = append(args, "--endpoint-url", endpoint)
	}
	return args
}

// env carries credentials through the environment so they never show up in
// the process list.
func (u *S3Uploader) env() []string {
	env := []string{
		"AWS_ACCESS_KEY_ID=" + u.cfg.AccessKey,
		"AWS_SECRET_ACCESS_KEY=" + u.cfg.SecretKey,
		"AWS_DEFAULT_REGION=" + u.cfg.Region,
	}
	if strings.TrimSpace(u.cfg.SessionToken) != "" {
		env = append(env, "AWS_SESSION_TOKEN="+u.cfg.SessionToken)
	}
	return env
}

func normalizeEndpoint(endpoint string, useSSL bool) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return ""
	}
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

func parseS3BucketURL(raw string) (bucket, prefix string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("s3: parse bucket-url: %w", err)
	}
	if u.Scheme != "s3" {
		return "", "", errors.New("s3: bucket-url must use s3:// scheme")
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", "", errors.New("s3: bucket-url missing bucket name")
	}
	return u.Host, strings.Trim(strings.TrimSpace(u.Path), "/"), nil
}
