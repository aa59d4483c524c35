package backup

import (
	"strings"
	"testing"
)

func TestParseS3BucketURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		raw       string
		wantErr   bool
		wantBkt   string
		wantPre   string
		errSubstr string
	}{
		{name: "bucket only", raw: "s3://ztm-archive", wantBkt: "ztm-archive"},
		{name: "bucket with prefix", raw: "s3://ztm-archive/frost/snapshots/", wantBkt: "ztm-archive", wantPre: "frost/snapshots"},
		{name: "invalid scheme", raw: "https://ztm-archive/frost", wantErr: true, errSubstr: "s3:// scheme"},
		{name: "missing bucket", raw: "s3:///frost", wantErr: true, errSubstr: "missing bucket"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			gotBkt, gotPre, err := parseS3BucketURL(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errSubstr) {
					t.Fatalf("err = %q, want substring %q", err.Error(), tt.errSubstr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseS3BucketURL error: %v", err)
			}
			if gotBkt != tt.wantBkt || gotPre != tt.wantPre {
				t.Fatalf("got (%q, %q), want (%q, %q)", gotBkt, gotPre, tt.wantBkt, tt.wantPre)
			}
		})
	}
}

func TestNewS3Uploader_MissingCredentials(t *testing.T) {
	t.Parallel()

	_, err := NewS3Uploader(S3Config{BucketURL: "s3://ztm-archive/frost", UseSSL: true})
	if err == nil || !strings.Contains(err.Error(), "access key") {
		t.Fatalf("err = %v, want missing credentials", err)
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		endpoint string
		useSSL   bool
		want     string
	}{
		{"", true, ""},
		{"minio.local:9000", false, "http://minio.local:9000"},
		{"s3.example.com", true, "https://s3.example.com"},
		{"http://minio.local:9000", true, "http://minio.local:9000"},
	}
	for _, tt := range tests {
		if got := normalizeEndpoint(tt.endpoint, tt.useSSL); got != tt.want {
			t.Errorf("normalizeEndpoint(%q, %v) = %q, want %q", tt.endpoint, tt.useSSL, got, tt.want)
		}
	}
}

func TestS3UploaderCommand(t *testing.T) {
	t.Parallel()

	u := &S3Uploader{
		bucket:    "ztm-archive",
		keyPrefix: "frost",
		cfg: S3Config{
			Endpoint:     "minio.local:9000",
			Region:       "eu-central-1",
			AccessKey:    "AKIA",
			SecretKey:    "secret",
			SessionToken: "token",
		},
	}

	args := strings.Join(u.args("/var/backups/frost-20240101-100000.db"), " ")
	want := "s3 cp /var/backups/frost-20240101-100000.db s3://ztm-archive/frost/frost-20240101-100000.db" +
		" --region eu-central-1 --only-show-errors --endpoint-url http://minio.local:9000"
	if args != want {
		t.Fatalf("args = %q\nwant   %q", args, want)
	}
	if strings.Contains(args, "secret") {
		t.Fatal("credentials leaked into command arguments")
	}

	env := strings.Join(u.env(), "\n")
	for _, kv := range []string{"AWS_ACCESS_KEY_ID=AKIA", "AWS_SECRET_ACCESS_KEY=secret", "AWS_SESSION_TOKEN=token"} {
		if !strings.Contains(env, kv) {
			t.Errorf("env missing %s", kv)
		}
	}
}
