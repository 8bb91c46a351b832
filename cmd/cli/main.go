// Command avamon is a CLI client for the Avamon game service.
package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/and161185/avamon/internal/api"
	"github.com/and161185/avamon/internal/crypto/clientcrypto"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Address     string    `json:"address"`
	Admin       bool      `json:"admin,omitempty"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "avamon")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "avamon")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func keyPath() string { return filepath.Join(cfgDir(), "wallet.key") }

func saveToken(tf tokenFile) error {
	_ = os.MkdirAll(cfgDir(), 0o700)
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tf)
}

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid token (login required)")
	}
	return tf.AccessToken, nil
}

// saveKey seals key with passphrase; an existing key file is never overwritten.
func saveKey(passphrase string, key *ecdsa.PrivateKey) error {
	if passphrase == "" {
		return errors.New("empty passphrase (use -pass or AVAMON_PASSPHRASE)")
	}
	blob, err := clientcrypto.SealKey([]byte(passphrase), key)
	if err != nil {
		return err
	}
	_ = os.MkdirAll(cfgDir(), 0o700)
	f, err := os.OpenFile(keyPath(), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(blob)
	return err
}

func loadKey(passphrase string) (*ecdsa.PrivateKey, error) {
	blob, err := os.ReadFile(keyPath())
	if err != nil {
		return nil, fmt.Errorf("no wallet key (run key-gen or key-import): %w", err)
	}
	return clientcrypto.OpenKey([]byte(passphrase), blob)
}

// ---- grpc dial ----

type bearerCreds struct {
	token  string
	secure bool
}

func (b bearerCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + b.token}, nil
}
func (b bearerCreds) RequireTransportSecurity() bool { return b.secure }

func loadTLS(caPath string, skipVerify bool) (credentials.TransportCredentials, error) {
	if skipVerify {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil
	}
	if caPath == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

type dialOpts struct {
	addr       string
	caPath     string
	skipVerify bool
	plaintext  bool
}

func dial(o dialOpts, bearer string) (*grpc.ClientConn, *api.Client, error) {
	var creds credentials.TransportCredentials
	if o.plaintext {
		creds = insecure.NewCredentials()
	} else {
		var err error
		if creds, err = loadTLS(o.caPath, o.skipVerify); err != nil {
			return nil, nil, err
		}
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if bearer != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(bearerCreds{token: bearer, secure: !o.plaintext}))
	}
	cc, err := grpc.NewClient(o.addr, opts...)
	if err != nil {
		return nil, nil, err
	}
	return cc, api.NewClient(cc), nil
}

// ---- utils ----

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func usage() {
	fmt.Fprintf(os.Stderr, `avamon CLI
Usage:
  avamon -addr HOST:PORT [-cacert file | -insecure | -plaintext] [-pass P] <cmd> [args]

Wallet:
  version
  key-gen                                   create and seal a new wallet key
  key-import  -hex <private key>            seal an existing key
  address                                   print the wallet address
  login                                     sign a challenge and save the token

Player:
  catalog
  stats
  events       [-limit N]
  buy-pack     -pack <id> [-n N]
  open         -pack <id> [-wait]
  request      -id <uuid>
  deck         -slot <n> -name <s> -cards 1,2,3,4
  upgrade-slots [-pay AVAX]
  energy       -n N [-pay AVAX]
  quest-slot   [-pay AVAX]
  send-tokens  -to <addr> -amount N
  send-card    -to <addr> -id <token>
  join         -adv <id> -cards 1,2,3,4
  claim        -adv <id>
  quests
  quest-claim  -id <quest>
  checkin

Admin:
  admin credit     -player <addr> -amount N
  admin grant      -player <addr> -pack <id> [-n N]
  admin mint       -player <addr> -template <id>
  admin progress   -player <addr> -quest <id> [-delta N]
  admin emergency  -id <uuid>
  admin create     -kind template|pack_type|adventure|quest -file <json>
  admin set-active -kind <kind> -id <id> [-active=false]
  admin pause | unpause | treasury
  admin withdraw   -amount AVAX
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands and configures TLS/auth for RPC calls.
func main() {
	// global flags
	o := dialOpts{}
	flag.StringVar(&o.addr, "addr", "localhost:8443", "server addr")
	flag.StringVar(&o.caPath, "cacert", "", "CA cert (PEM)")
	flag.BoolVar(&o.skipVerify, "insecure", false, "skip cert verify (dev)")
	flag.BoolVar(&o.plaintext, "plaintext", false, "no TLS (dev)")
	pass := flag.String("pass", os.Getenv("AVAMON_PASSPHRASE"), "wallet key passphrase")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch cmd {
	case "version":
		fmt.Printf("avamon %s (%s)\n", version, buildDate)
		return

	case "key-gen":
		key, err := clientcrypto.GenerateKey()
		if err != nil {
			fail(err)
		}
		if err := saveKey(*pass, key); err != nil {
			fail(err)
		}
		fmt.Println(clientcrypto.Address(key).Hex())
		return

	case "key-import":
		fs := flag.NewFlagSet("key-import", flag.ExitOnError)
		hexKey := fs.String("hex", "", "hex private key")
		_ = fs.Parse(args)
		key, err := parsePrivateKey(*hexKey)
		if err != nil {
			fail(err)
		}
		if err := saveKey(*pass, key); err != nil {
			fail(err)
		}
		fmt.Println(clientcrypto.Address(key).Hex())
		return

	case "address":
		key, err := loadKey(*pass)
		if err != nil {
			fail(err)
		}
		fmt.Println(clientcrypto.Address(key).Hex())
		return

	case "login":
		key, err := loadKey(*pass)
		if err != nil {
			fail(err)
		}
		cc, cli, err := dial(o, "")
		if err != nil {
			fail(err)
		}
		defer cc.Close()
		tf, err := login(ctx, cli, key)
		if err != nil {
			fail(err)
		}
		if err := saveToken(tf); err != nil {
			fail(err)
		}
		fmt.Printf("ok %s admin=%v expires=%s\n", tf.Address, tf.Admin, tf.ExpiresAt.Format(time.RFC3339))
		return

	case "catalog":
		cc, cli, err := dial(o, "")
		if err != nil {
			fail(err)
		}
		defer cc.Close()
		c, err := cli.GetCatalog(ctx, &api.Empty{})
		if err != nil {
			fail(err)
		}
		printJSON(os.Stdout, c)
		return
	}

	token, err := loadToken()
	if err != nil {
		fail(err)
	}
	cc, cli, err := dial(o, token)
	if err != nil {
		fail(err)
	}
	defer cc.Close()

	if cmd == "admin" {
		err = runAdmin(ctx, cli, args, os.Stdout)
	} else {
		err = runPlayer(ctx, cli, cmd, args, os.Stdout)
	}
	if errors.Is(err, errUsage) {
		usage()
	}
	if err != nil {
		fail(err)
	}
}

// ---- helpers ----

func fail(err error) {
	if s, ok := status.FromError(err); ok {
		fmt.Fprintf(os.Stderr, "rpc error: code=%s msg=%s\n", s.Code(), s.Message())
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
