// Package auth resolves the API credentials for the remote model services.
// Credentials are never compiled in; each is read from its environment
// variable, falling back to a GPG-encrypted file under ~/.reimagine.
package auth

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

const credentialDir = ".reimagine"

// Service identifies a remote API that needs a credential.
type Service struct {
	Name   string
	EnvVar string
	File   string
}

var (
	// OpenAI is the narrative interpreter service.
	OpenAI = Service{Name: "OpenAI", EnvVar: "OPENAI_API_KEY", File: "openai.gpg"}
	// Replicate is the image editing service.
	Replicate = Service{Name: "Replicate", EnvVar: "REPLICATE_API_TOKEN", File: "replicate.gpg"}
	// Gemini is the alternative interpreter service.
	Gemini = Service{Name: "Gemini", EnvVar: "GEMINI_API_KEY", File: "gemini.gpg"}
)

// Credentials holds already-resolved secrets for one run.
type Credentials struct {
	// InterpreterKey authenticates the narrative interpreter (OpenAI or Gemini).
	InterpreterKey string
	// EditorToken authenticates the image editor (Replicate).
	EditorToken string
}

// Resolve looks up the interpreter credential for interpreter and the editor
// token. Every missing credential is reported as a *ValidationError.
func Resolve(interpreter Service) (*Credentials, error) {
	interpreterKey, err := GetKey(interpreter)
	if err != nil {
		return nil, err
	}
	editorToken, err := GetKey(Replicate)
	if err != nil {
		return nil, err
	}
	return &Credentials{InterpreterKey: interpreterKey, EditorToken: editorToken}, nil
}

// GetKey retrieves a credential for svc.
// Priority order:
//  1. the service's environment variable
//  2. GPG-encrypted file at ~/.reimagine/<file>
func GetKey(svc Service) (string, error) {
	if key := strings.TrimSpace(os.Getenv(svc.EnvVar)); key != "" {
		log.Debug().Str("service", svc.Name).Msg("Using credential from environment variable")
		return key, nil
	}

	key, err := getFromGPG(svc.File)
	if err == nil && key != "" {
		log.Debug().Str("service", svc.Name).Msg("Using credential from GPG encrypted file")
		return key, nil
	}

	log.Debug().Err(err).Str("service", svc.Name).Msg("Credential not found")
	return "", &ValidationError{
		Type:    ErrTypeNoKey,
		Service: svc.Name,
		Message: fmt.Sprintf("%s credential not found. Set %s or store it in ~/%s/%s", svc.Name, svc.EnvVar, credentialDir, svc.File),
		Err:     err,
	}
}

// getFromGPG decrypts a credential from a GPG-encrypted file.
func getFromGPG(file string) (string, error) {
	credPath, err := getCredentialPath(file)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(credPath); os.IsNotExist(err) {
		return "", fmt.Errorf("GPG credentials file not found at %s", credPath)
	}

	log.Debug().Str("file", credPath).Msg("Decrypting GPG credentials")

	args := []string{"--decrypt", "--quiet"}

	if passphrasePath, err := getPassphrasePath(); err == nil {
		fi, statErr := os.Stat(passphrasePath)
		if statErr == nil {
			mode := fi.Mode().Perm()
			if mode&0077 != 0 {
				log.Warn().
					Str("passphrase_file", passphrasePath).
					Str("permissions", fmt.Sprintf("%04o", mode)).
					Msg("Passphrase file has insecure permissions (should be 0600); skipping")
			} else {
				args = append(args, "--pinentry-mode", "loopback", "--passphrase-file", passphrasePath)
			}
		}
	}

	args = append(args, credPath)
	output, err := exec.Command("gpg", args...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("GPG decryption failed: %s", string(exitErr.Stderr))
		}
		return "", fmt.Errorf("GPG decryption failed: %w", err)
	}

	return strings.TrimSpace(string(output)), nil
}

// getCredentialPath returns the full path to a credentials file.
func getCredentialPath(file string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, credentialDir, file), nil
}

// getPassphrasePath returns the .gpg-passphrase file next to the executable,
// or in the working directory when none exists there.
func getPassphrasePath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}

	passphrasePath := filepath.Join(filepath.Dir(exe), ".gpg-passphrase")
	if _, err := os.Stat(passphrasePath); err == nil {
		return passphrasePath, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return filepath.Join(cwd, ".gpg-passphrase"), nil
}
