package emailcontent

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/osteele/liquid"
	"github.com/shopspring/decimal"
)

// Renderer renders Liquid templates for transactional emails (contact form
// relays, payment summaries). Rendering is lax: a template that fails to
// parse or render is returned as-is so a send never dies on bad markup.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // template source -> *liquid.Template
}

// NewRenderer creates a renderer with the domain filters registered.
func NewRenderer() *Renderer {
	r := &Renderer{engine: liquid.NewEngine()}
	r.registerFilters()
	return r
}

func (r *Renderer) registerFilters() {
	// {{ sender_name | default: "Someone" }}
	r.engine.RegisterFilter("default", func(value interface{}, fallback string) interface{} {
		if value == nil {
			return fallback
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return fallback
		}
		return value
	})

	// {{ total_amount | money }} renders "1,234.50"
	r.engine.RegisterFilter("money", func(value interface{}) string {
		d, err := decimal.NewFromString(fmt.Sprintf("%v", value))
		if err != nil {
			return fmt.Sprintf("%v", value)
		}
		s := d.StringFixed(2)
		parts := strings.SplitN(s, ".", 2)
		whole := parts[0]
		neg := strings.HasPrefix(whole, "-")
		whole = strings.TrimPrefix(whole, "-")
		var sb strings.Builder
		for i, ch := range whole {
			if i > 0 && (len(whole)-i)%3 == 0 {
				sb.WriteByte(',')
			}
			sb.WriteRune(ch)
		}
		out := sb.String() + "." + parts[1]
		if neg {
			out = "-" + out
		}
		return out
	})

	// {{ period_start | short_date }} renders "Jan 2, 2006"
	r.engine.RegisterFilter("short_date", func(value interface{}) string {
		switch v := value.(type) {
		case time.Time:
			return v.Format("Jan 2, 2006")
		case string:
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				return t.Format("Jan 2, 2006")
			}
			return v
		default:
			return fmt.Sprintf("%v", value)
		}
	})
}

// Render parses and renders the template against the bindings. Parsed
// templates are cached by source since the transactional templates are
// package constants rendered on every job.
func (r *Renderer) Render(templateStr string, bindings map[string]interface{}) (string, error) {
	var tpl *liquid.Template
	if cached, ok := r.cache.Load(templateStr); ok {
		tpl = cached.(*liquid.Template)
	} else {
		parsed, err := r.engine.ParseString(templateStr)
		if err != nil {
			log.Printf("[ContentRenderer] Parse error: %v", err)
			return templateStr, err
		}
		r.cache.Store(templateStr, parsed)
		tpl = parsed
	}

	out, err := tpl.RenderString(bindings)
	if err != nil {
		log.Printf("[ContentRenderer] Render error: %v", err)
		return templateStr, err
	}
	return out, nil
}
