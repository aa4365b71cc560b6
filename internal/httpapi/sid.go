package httpapi

import (
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

const sidCookie = "sid"

// clientID returns the caller's sid cookie, issuing a fresh one when the
// request carries none or an invalid one.
func clientID(ctx *fasthttp.RequestCtx) string {
	if raw := ctx.Request.Header.Cookie(sidCookie); len(raw) > 0 {
		if id, err := uuid.ParseBytes(raw); err == nil {
			return id.String()
		}
	}
	sid := uuid.NewString()
	c := fasthttp.AcquireCookie()
	defer fasthttp.ReleaseCookie(c)
	c.SetKey(sidCookie)
	c.SetValue(sid)
	c.SetPath("/")
	c.SetHTTPOnly(true)
	c.SetSameSite(fasthttp.CookieSameSiteLaxMode)
	ctx.Response.Header.SetCookie(c)
	return sid
}
