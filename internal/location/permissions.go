package location

import (
	"context"
	"log"
	"sync"
)

// Prompter asks the user (or the platform bridge) for a permission
type Prompter interface {
	PromptForeground(ctx context.Context) (PermissionStatus, error)
	PromptBackground(ctx context.Context) (PermissionStatus, error)
}

// StatusChecker reads the platform's current permission state without
// showing any UI
type StatusChecker interface {
	ForegroundStatus(ctx context.Context) (PermissionStatus, error)
	BackgroundStatus(ctx context.Context) (PermissionStatus, error)
}

// StaticPrompter answers prompts with preconfigured statuses
type StaticPrompter struct {
	Foreground PermissionStatus
	Background PermissionStatus
}

func (p StaticPrompter) PromptForeground(ctx context.Context) (PermissionStatus, error) {
	return p.Foreground, nil
}

func (p StaticPrompter) PromptBackground(ctx context.Context) (PermissionStatus, error) {
	return p.Background, nil
}

func (p StaticPrompter) ForegroundStatus(ctx context.Context) (PermissionStatus, error) {
	return p.Foreground, nil
}

func (p StaticPrompter) BackgroundStatus(ctx context.Context) (PermissionStatus, error) {
	return p.Background, nil
}

// Permissions caches grants so an already granted permission is never
// prompted for again. Denials are re-prompted on the next request.
type Permissions struct {
	prompter   Prompter
	foreground PermissionStatus
	background PermissionStatus
	mutex      sync.Mutex
}

func NewPermissions(p Prompter) *Permissions {
	return &Permissions{
		prompter:   p,
		foreground: PermissionUndetermined,
		background: PermissionUndetermined,
	}
}

func (p *Permissions) RequestForeground(ctx context.Context) (PermissionStatus, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.foreground == PermissionGranted {
		return PermissionGranted, nil
	}
	status, err := p.prompter.PromptForeground(ctx)
	if err != nil {
		return PermissionUndetermined, err
	}
	p.foreground = status
	log.Printf("📍 Foreground location permission: %s", status)
	return status, nil
}

func (p *Permissions) RequestBackground(ctx context.Context) (PermissionStatus, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.background == PermissionGranted {
		return PermissionGranted, nil
	}
	status, err := p.prompter.PromptBackground(ctx)
	if err != nil {
		return PermissionUndetermined, err
	}
	p.background = status
	log.Printf("📍 Background location permission: %s", status)
	return status, nil
}

// Granted reports whether both permissions are currently granted
func (p *Permissions) Granted() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.foreground == PermissionGranted && p.background == PermissionGranted
}

// Resolve fills undetermined statuses from the platform when the prompter
// can report them silently, then reports whether both are granted. A cached
// denial is kept until the next explicit request.
func (p *Permissions) Resolve(ctx context.Context) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if checker, ok := p.prompter.(StatusChecker); ok {
		if p.foreground == PermissionUndetermined {
			if status, err := checker.ForegroundStatus(ctx); err == nil {
				p.foreground = status
			} else {
				log.Printf("⚠️  Foreground permission status unavailable: %v", err)
			}
		}
		if p.background == PermissionUndetermined {
			if status, err := checker.BackgroundStatus(ctx); err == nil {
				p.background = status
			} else {
				log.Printf("⚠️  Background permission status unavailable: %v", err)
			}
		}
	}
	return p.foreground == PermissionGranted && p.background == PermissionGranted
}

// Revoke forgets cached grants, as when the user withdraws them in settings
func (p *Permissions) Revoke() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.foreground = PermissionDenied
	p.background = PermissionDenied
}
