// Package transfer publishes packaged artifacts to a remote host over a
// single SFTP session. There are no retries: one attempt, and any failure
// surfaces as *Error for the caller to act on.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/slipway-k8s/slipway/internal/archive"
	"github.com/slipway-k8s/slipway/internal/config"
)

const defaultDialTimeout = 30 * time.Second

// Endpoint identifies the publish destination and its host-key policy.
type Endpoint struct {
	Host string
	Port int
	User string
	// Dir is the remote directory the artifact is uploaded into. It is
	// created when missing.
	Dir string
	// KnownHostsFile pins acceptable host keys. Exactly one of
	// KnownHostsFile and InsecureSkipHostKey must be set.
	KnownHostsFile      string
	InsecureSkipHostKey bool
}

// EndpointFromConfig maps the topology's publish block onto an Endpoint.
func EndpointFromConfig(pub *config.PublishConfig) Endpoint {
	return Endpoint{
		Host:                pub.Host,
		Port:                pub.EffectivePort(),
		User:                pub.User,
		Dir:                 pub.Dir,
		KnownHostsFile:      pub.KnownHostsFile,
		InsecureSkipHostKey: pub.InsecureSkipHostKey,
	}
}

func (e Endpoint) addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// hostKeyCallback builds the verification callback from the endpoint
// policy. A pinned known-hosts file always wins over the insecure opt-out.
func (e Endpoint) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if e.KnownHostsFile != "" {
		resolved, err := expandHome(e.KnownHostsFile)
		if err != nil {
			return nil, err
		}
		cb, err := knownhosts.New(resolved)
		if err != nil {
			return nil, fmt.Errorf("load known hosts %q: %w", resolved, err)
		}
		return cb, nil
	}
	if e.InsecureSkipHostKey {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // explicit opt-out recorded in the topology
	}
	return nil, errors.New("host key verification requires knownHostsFile or the insecureSkipHostKey opt-out")
}

// Credentials hold the SSH identity used for publishing. Values arrive via
// the environment and are never written to logs.
type Credentials struct {
	// KeyFile is a path to a private key, optionally passphrase-protected.
	KeyFile       string
	KeyPassphrase string
	// Password enables password authentication, alone or alongside a key.
	Password string
}

// LogValue keeps credential material out of log output.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("keyFile", c.KeyFile != ""),
		slog.Bool("password", c.Password != ""),
	)
}

// methods builds the SSH auth chain: key first when configured, then
// password.
func (c Credentials) methods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if c.KeyFile != "" {
		keyPath, err := expandHome(c.KeyFile)
		if err != nil {
			return nil, err
		}
		raw, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("read ssh key %q: %w", keyPath, err)
		}
		var signer ssh.Signer
		if c.KeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(raw, []byte(c.KeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(raw)
		}
		if err != nil {
			return nil, fmt.Errorf("parse ssh key %q: %w", keyPath, err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if c.Password != "" {
		methods = append(methods, ssh.Password(c.Password))
	}
	if len(methods) == 0 {
		return nil, errors.New("no ssh credentials: set SLIPWAY_SSH_KEY_FILE or SLIPWAY_SSH_PASSWORD")
	}
	return methods, nil
}

// Receipt reports a completed upload.
type Receipt struct {
	RemotePath string
	Bytes      int64
	SHA256     string
}

// Publisher uploads artifacts over SFTP.
type Publisher struct {
	logger      *slog.Logger
	dialTimeout time.Duration
}

// New constructs a Publisher. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{logger: logger, dialTimeout: defaultDialTimeout}
}

// Preflight verifies credentials and host-key policy without dialing, so
// problems surface before a release run reaches the publish stage.
func Preflight(ep Endpoint, creds Credentials) error {
	if _, err := creds.methods(); err != nil {
		return &Error{Op: "authenticate", Target: ep.addr(), Err: err}
	}
	if _, err := ep.hostKeyCallback(); err != nil {
		return &Error{Op: "verify host key", Target: ep.addr(), Err: err}
	}
	return nil
}

// Publish uploads the artifact to ep.Dir in one attempt and returns the
// remote path it landed at. Every failure is an *Error naming the step.
func (p *Publisher) Publish(ctx context.Context, artifact archive.Artifact, ep Endpoint, creds Credentials) (Receipt, error) {
	methods, err := creds.methods()
	if err != nil {
		return Receipt{}, &Error{Op: "authenticate", Target: ep.addr(), Err: err}
	}
	hostKeys, err := ep.hostKeyCallback()
	if err != nil {
		return Receipt{}, &Error{Op: "verify host key", Target: ep.addr(), Err: err}
	}

	local, err := os.Open(artifact.Path)
	if err != nil {
		return Receipt{}, &Error{Op: "open artifact", Target: artifact.Path, Err: err}
	}
	defer func() { _ = local.Close() }()

	p.logger.Info("publishing artifact",
		"archive", filepath.Base(artifact.Path),
		"sha256", artifact.SHA256,
		"destination", ep.User+"@"+ep.addr()+":"+ep.Dir,
	)

	dialer := net.Dialer{Timeout: p.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", ep.addr())
	if err != nil {
		return Receipt{}, &Error{Op: "dial", Target: ep.addr(), Err: err}
	}

	sshConf := &ssh.ClientConfig{
		User:            ep.User,
		Auth:            methods,
		HostKeyCallback: hostKeys,
		Timeout:         p.dialTimeout,
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, ep.addr(), sshConf)
	if err != nil {
		_ = conn.Close()
		return Receipt{}, &Error{Op: "ssh handshake", Target: ep.addr(), Err: err}
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)
	defer func() { _ = sshClient.Close() }()

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		return Receipt{}, &Error{Op: "open sftp session", Target: ep.addr(), Err: err}
	}
	defer func() { _ = client.Close() }()

	if err := client.MkdirAll(ep.Dir); err != nil {
		return Receipt{}, &Error{Op: "create remote dir", Target: ep.Dir, Err: err}
	}

	remotePath := path.Join(ep.Dir, filepath.Base(artifact.Path))
	remote, err := client.Create(remotePath)
	if err != nil {
		return Receipt{}, &Error{Op: "create remote file", Target: remotePath, Err: err}
	}

	written, err := io.Copy(remote, local)
	if err != nil {
		_ = remote.Close()
		return Receipt{}, &Error{Op: "upload", Target: remotePath, Err: err}
	}
	if err := remote.Close(); err != nil {
		return Receipt{}, &Error{Op: "close remote file", Target: remotePath, Err: err}
	}
	if written != artifact.Size {
		return Receipt{}, &Error{Op: "upload", Target: remotePath, Err: fmt.Errorf("wrote %d of %d bytes", written, artifact.Size)}
	}

	p.logger.Info("artifact published", "remote", remotePath, "bytes", written)

	return Receipt{RemotePath: remotePath, Bytes: written, SHA256: artifact.SHA256}, nil
}

// expandHome resolves a leading "~/" against the current user's home
// directory so topology files can reference per-user paths.
func expandHome(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
	}
	return p, nil
}
