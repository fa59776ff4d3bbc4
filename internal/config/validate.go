package config

import (
	"fmt"
	"net/url"
	"strings"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

// NormalizeAndValidate returns a normalized copy of cfg and what is wrong with it.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	var out = cfg
	var res Validation

	trimList := func(xs []string) []string {
		seen := map[string]bool{}
		var ys []string
		for _, x := range xs {
			x = strings.TrimSpace(x)
			if x == "" {
				continue
			}
			key := strings.ToLower(x)
			if seen[key] {
				continue
			}
			seen[key] = true
			ys = append(ys, x)
		}
		return ys
	}

	out.Server.CORSAllowedOrigins = trimList(out.Server.CORSAllowedOrigins)
	out.Log.Env = strings.ToLower(strings.TrimSpace(out.Log.Env))
	out.Log.Level = strings.ToLower(strings.TrimSpace(out.Log.Level))
	out.Dashboard.APIURL = strings.TrimRight(strings.TrimSpace(out.Dashboard.APIURL), "/")
	out.Dashboard.PushURL = strings.TrimSpace(out.Dashboard.PushURL)

	// ---- Validation rules ----

	if out.App.Port <= 0 || out.App.Port > 65535 {
		res.addErr("app.port must be 1..65535")
	}

	switch out.Log.Env {
	case "", "dev", "prod":
	default:
		res.addErr("log.env must be dev or prod")
	}
	switch out.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		res.addWarn("log.level %q is unknown; info is used", out.Log.Level)
	}

	if out.Server.ContactRatePerMin <= 0 {
		res.addErr("server.contact_rate_per_min must be > 0")
	}
	for _, o := range out.Server.CORSAllowedOrigins {
		if o == "*" {
			res.addWarn("server.cors_allowed_origins contains *; any site can call the admin API")
		}
	}

	checkURL := func(name, raw string, schemes ...string) {
		if raw == "" {
			res.addErr("%s is required", name)
			return
		}
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			res.addErr("%s is not a valid URL: %q", name, raw)
			return
		}
		for _, s := range schemes {
			if u.Scheme == s {
				return
			}
		}
		res.addErr("%s must use one of %s", name, strings.Join(schemes, ", "))
	}
	checkURL("dashboard.api_url", out.Dashboard.APIURL, "http", "https")
	checkURL("dashboard.push_url", out.Dashboard.PushURL, "ws", "wss")

	if out.Dashboard.RequestRate <= 0 {
		res.addErr("dashboard.request_rate must be > 0")
	}
	if out.Dashboard.ReconnectSeconds <= 0 {
		res.addErr("dashboard.reconnect_seconds must be > 0")
	}

	// password not required here; it's in the keychain
	if out.Mail.Enabled {
		if strings.TrimSpace(out.Mail.IMAPHost) == "" {
			res.addErr("mail.imap_host is required when mail.enabled=true")
		}
		if out.Mail.IMAPPort == 0 {
			res.addErr("mail.imap_port is required when mail.enabled=true")
		}
		if strings.TrimSpace(out.Mail.Username) == "" {
			res.addErr("mail.username is required when mail.enabled=true")
		}
		if strings.TrimSpace(out.Mail.Mailbox) == "" {
			res.addErr("mail.mailbox is required when mail.enabled=true")
		}
		if out.Mail.PollSeconds <= 0 {
			res.addErr("mail.poll_seconds must be > 0")
		} else if out.Mail.PollSeconds < 30 {
			res.addWarn("mail.poll_seconds is very low (%d) and may cause rate limits.", out.Mail.PollSeconds)
		}
		if strings.TrimSpace(out.Mail.SubjectPrefix) == "" {
			res.addWarn("mail.subject_prefix is empty; every unseen message becomes a contact.")
		}
	}

	if out.Retention.ContactsDays < 0 {
		res.addErr("retention.contacts_days must be >= 0")
	}

	return out, res
}
