// internal/browser/session/session_test.go
package session

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/xkilldash9x/pagewalk/internal/browser/cookies"
	"github.com/xkilldash9x/pagewalk/internal/browser/dom"
	"github.com/xkilldash9x/pagewalk/internal/browser/jsexec"
	"github.com/xkilldash9x/pagewalk/internal/browser/request"
	"github.com/xkilldash9x/pagewalk/internal/config"
)

// echoHeader serves a page whose #value paragraph holds the named request header.
func echoHeader(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><body><p id="value">%s</p></body></html>`, r.Header.Get(name))
	}
}

// echoBody serves the method and raw request body as plain text.
func echoBody(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "%s %s", r.Method, body)
}

func redirectTo(status int, location string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, location, status)
	}
}

func elementText(t *testing.T, resp *Response, id string) string {
	t.Helper()
	require.NotNil(t, resp.Document, "response has no document")
	node := resp.Document.ElementByID(id)
	require.NotNil(t, node, "no element with id %q", id)
	return strings.TrimSpace(dom.Text(node))
}

func TestConversation_GetResponse(t *testing.T) {
	s := newSite(t)
	s.page("/", `<html><head><title>Home</title></head><body><a href="/next">next</a></body></html>`)
	s.handle("/data", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true}`)
	})

	t.Run("HTML", func(t *testing.T) {
		conv := newTestConversation(t, nil)
		resp, err := conv.GetResponse(testContext(t), s.url("/"))
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.Status)
		assert.Equal(t, "text/html", resp.ContentType)
		assert.True(t, resp.IsMarkup())
		assert.Equal(t, "Home", resp.Title())
		require.Len(t, resp.Links(), 1)
		assert.Same(t, resp, conv.CurrentPage())
		assert.True(t, resp.Frame().IsTop())
	})

	t.Run("NonMarkup", func(t *testing.T) {
		conv := newTestConversation(t, nil)
		resp, err := conv.GetResponse(testContext(t), s.url("/data"))
		require.NoError(t, err)

		assert.False(t, resp.IsMarkup())
		assert.Equal(t, `{"ok":true}`, resp.Text())
		assert.Empty(t, resp.Forms())
	})

	t.Run("RelativeURLRejected", func(t *testing.T) {
		conv := newTestConversation(t, nil)
		_, err := conv.GetResponse(testContext(t), "/relative")
		assert.Error(t, err)
	})

	t.Run("Closed", func(t *testing.T) {
		conv := newTestConversation(t, nil)
		require.NoError(t, conv.Close())
		_, err := conv.GetResponse(testContext(t), s.url("/"))
		assert.ErrorIs(t, err, ErrClosed)
	})
}

func TestConversation_Redirects(t *testing.T) {
	s := newSite(t)
	s.handle("/start", redirectTo(http.StatusFound, "/middle"))
	s.handle("/middle", redirectTo(http.StatusMovedPermanently, "/end"))
	s.handle("/end", echoHeader("Referer"))
	s.handle("/loop", redirectTo(http.StatusFound, "/loop"))
	s.handle("/unfollowed", redirectTo(http.StatusFound, "/never"))
	s.page("/form", `<html><body>
		<form name="f" action="/old" method="post"><input name="q" value="go"></form>
		<form name="g" action="/see-other" method="post"><input name="q" value="go"></form>
	</body></html>`)
	s.handle("/old", redirectTo(http.StatusTemporaryRedirect, "/echo"))
	s.handle("/see-other", redirectTo(http.StatusSeeOther, "/echo"))
	s.handle("/echo", echoBody)
	s.page("/a", `<html><body><a href="/start">go</a></body></html>`)

	t.Run("RefererIsOriginalURL", func(t *testing.T) {
		conv := newTestConversation(t, nil)
		resp, err := conv.GetResponse(testContext(t), s.url("/start?x=1"))
		require.NoError(t, err)

		assert.Equal(t, "/end", resp.URL.Path)
		assert.Equal(t, s.url("/start?x=1"), elementText(t, resp, "value"))
	})

	t.Run("LinkKeepsPageRefererAcrossHops", func(t *testing.T) {
		conv := newTestConversation(t, nil)
		ctx := testContext(t)
		page, err := conv.GetResponse(ctx, s.url("/a"))
		require.NoError(t, err)
		links := page.Links()
		require.Len(t, links, 1)

		resp, err := conv.Click(ctx, links[0])
		require.NoError(t, err)

		assert.Equal(t, "/end", resp.URL.Path)
		// Neither the redirecting URL nor the final one.
		assert.Equal(t, s.url("/a"), elementText(t, resp, "value"))
	})

	t.Run("NotFollowedWhenDisabled", func(t *testing.T) {
		conv := newTestConversation(t, func(c *config.ConversationConfig) { c.AutoRedirect = false })
		resp, err := conv.GetResponse(testContext(t), s.url("/unfollowed"))
		require.NoError(t, err)

		assert.Equal(t, http.StatusFound, resp.Status)
		assert.Equal(t, "/never", resp.Header.Get("Location"))
		assert.Equal(t, 0, s.hitCount("/never"))
	})

	t.Run("TooMany", func(t *testing.T) {
		conv := newTestConversation(t, func(c *config.ConversationConfig) { c.MaxRedirects = 3 })
		_, err := conv.GetResponse(testContext(t), s.url("/loop"))
		require.Error(t, err)

		assert.ErrorIs(t, err, ErrProtocol)
		assert.Contains(t, err.Error(), "more than 3 redirects")
	})

	t.Run("TemporaryRedirectKeepsMethodAndBody", func(t *testing.T) {
		conv := newTestConversation(t, nil)
		ctx := testContext(t)
		page, err := conv.GetResponse(ctx, s.url("/form"))
		require.NoError(t, err)

		resp, err := conv.SubmitForm(ctx, page.FormWithName("f"), nil)
		require.NoError(t, err)
		assert.Equal(t, "POST q=go", resp.Text())
	})

	t.Run("SeeOtherBecomesGet", func(t *testing.T) {
		conv := newTestConversation(t, nil)
		ctx := testContext(t)
		page, err := conv.GetResponse(ctx, s.url("/form"))
		require.NoError(t, err)

		resp, err := conv.SubmitForm(ctx, page.FormWithName("g"), nil)
		require.NoError(t, err)
		assert.Equal(t, "GET ", resp.Text())
	})
}

func TestConversation_RedirectDropsAuthorizationAcrossHosts(t *testing.T) {
	seen := map[string]string{}
	transport := &mockTransport{handler: func(req *http.Request) (*http.Response, error) {
		seen[req.URL.Host] = req.Header.Get("Authorization")
		if req.URL.Host == "a.test" {
			resp := htmlResponse(req, http.StatusFound, "")
			resp.Header.Set("Location", "http://b.test/landing")
			return resp, nil
		}
		return htmlResponse(req, http.StatusOK, "<html><body>landed</body></html>"), nil
	}}
	conv := newTestConversation(t, func(c *config.ConversationConfig) {
		c.Auth = config.AuthConfig{Username: "user", Password: "secret"}
	}, WithTransport(transport))

	resp, err := conv.GetResponse(testContext(t), "http://a.test/start")
	require.NoError(t, err)

	assert.Equal(t, "b.test", resp.URL.Host)
	assert.NotEmpty(t, seen["a.test"])
	assert.Empty(t, seen["b.test"])
}

func TestConversation_ErrorStatus(t *testing.T) {
	s := newSite(t)
	s.handle("/gone", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusGone)
		fmt.Fprint(w, `<html><head><title>Gone</title></head></html>`)
	})

	t.Run("Raised", func(t *testing.T) {
		conv := newTestConversation(t, nil)
		_, err := conv.GetResponse(testContext(t), s.url("/gone"))
		require.Error(t, err)

		var statusErr *HTTPStatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusGone, statusErr.Status)
		assert.ErrorIs(t, err, ErrProtocol)
		require.NotNil(t, statusErr.Response)
		assert.Equal(t, "Gone", statusErr.Response.Title())
		assert.Nil(t, conv.CurrentPage(), "failed response must not be displayed")
	})

	t.Run("Returned", func(t *testing.T) {
		conv := newTestConversation(t, func(c *config.ConversationConfig) { c.ExceptionsOnErrorStatus = false })
		resp, err := conv.GetResponse(testContext(t), s.url("/gone"))
		require.NoError(t, err)

		assert.Equal(t, http.StatusGone, resp.Status)
		assert.Equal(t, "Gone", resp.StatusText)
		assert.Same(t, resp, conv.CurrentPage())
	})
}

func TestConversation_Cookies(t *testing.T) {
	s := newSite(t)
	s.handle("/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc", Path: "/"})
		http.Redirect(w, r, "/check", http.StatusFound)
	})
	s.handle("/check", echoHeader("Cookie"))

	t.Run("SetOnRedirectHop", func(t *testing.T) {
		conv := newTestConversation(t, nil)
		resp, err := conv.GetResponse(testContext(t), s.url("/login"))
		require.NoError(t, err)

		assert.Equal(t, "sid=abc", elementText(t, resp, "value"))
		value, ok := conv.CookieValue("sid")
		assert.True(t, ok)
		assert.Equal(t, "abc", value)
		assert.Len(t, conv.Cookies(resp.URL), 1)
	})

	t.Run("Rejected", func(t *testing.T) {
		conv := newTestConversation(t, func(c *config.ConversationConfig) { c.AcceptCookies = false })
		resp, err := conv.GetResponse(testContext(t), s.url("/login"))
		require.NoError(t, err)

		assert.Empty(t, elementText(t, resp, "value"))
		_, ok := conv.CookieValue("sid")
		assert.False(t, ok)
	})

	t.Run("PutCookie", func(t *testing.T) {
		conv := newTestConversation(t, nil)
		conv.PutCookie(&cookies.Cookie{Name: "manual", Value: "1", Domain: "127.0.0.1", Path: "/", HostOnly: true})
		resp, err := conv.GetResponse(testContext(t), s.url("/check"))
		require.NoError(t, err)

		assert.Equal(t, "manual=1", elementText(t, resp, "value"))
	})
}

func TestConversation_Frames(t *testing.T) {
	s := newSite(t)
	s.page("/frames", `<html><frameset cols="20%,80%">
		<frame name="nav" src="/nav">
		<frame name="main">
	</frameset></html>`)
	s.page("/nav", `<html><body>
		<a id="content" href="/content" target="main">content</a>
		<a id="self" href="/nav2">again</a>
		<a id="top" href="/top" target="_top">top</a>
		<a id="new" href="/popup" target="_blank">popup</a>
		<a id="named" href="/popup" target="side">side</a>
	</body></html>`)
	s.page("/nav2", `<html><head><base target="main"></head><body>
		<a id="based" href="/content2">based</a>
	</body></html>`)
	s.page("/content", `<html><body><p id="where">content</p></body></html>`)
	s.page("/content2", `<html><body><p id="where">content2</p></body></html>`)
	s.page("/top", `<html><head><title>Top</title></head><body></body></html>`)
	s.page("/popup", `<html><head><title>Popup</title></head><body></body></html>`)

	load := func(t *testing.T) (*Conversation, *Window) {
		conv := newTestConversation(t, nil)
		resp, err := conv.GetResponse(testContext(t), s.url("/frames"))
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"nav", "main"}, resp.FrameNames())
		return conv, resp.Window()
	}
	link := func(t *testing.T, w *Window, frame, id string) *dom.Link {
		f := w.FrameNamed(frame)
		require.NotNil(t, f, "no frame %q", frame)
		l := f.Response().Document.LinkWithID(id)
		require.NotNil(t, l, "no link %q in frame %q", id, frame)
		return l
	}

	t.Run("SubframesLoaded", func(t *testing.T) {
		_, w := load(t)
		require.Len(t, w.Root().Children(), 2)

		nav := w.FrameNamed("nav")
		assert.Equal(t, "/nav", nav.Response().URL.Path)
		assert.Equal(t, w.ID()+"/0", string(nav.Selector()))
		assert.Equal(t, 1, nav.Selector().Depth())
		assert.Equal(t, "nav", nav.Response().Target)

		main := w.FrameNamed("main")
		assert.Equal(t, "about:blank", main.Response().URL.String())
	})

	t.Run("NamedTarget", func(t *testing.T) {
		conv, w := load(t)
		resp, err := conv.Click(testContext(t), link(t, w, "nav", "content"))
		require.NoError(t, err)

		assert.Equal(t, "main", resp.Frame().Name())
		assert.Equal(t, "content", elementText(t, resp, "where"))
		assert.Equal(t, "/nav", w.FrameNamed("nav").Response().URL.Path)
	})

	t.Run("InheritedTarget", func(t *testing.T) {
		conv, w := load(t)
		ctx := testContext(t)
		resp, err := conv.Click(ctx, link(t, w, "nav", "self"))
		require.NoError(t, err)
		assert.Equal(t, "nav", resp.Frame().Name())
		assert.Equal(t, "/nav2", resp.URL.Path)

		resp, err = conv.Click(ctx, link(t, w, "nav", "based"))
		require.NoError(t, err)
		assert.Equal(t, "main", resp.Frame().Name())
		assert.Equal(t, "content2", elementText(t, resp, "where"))
	})

	t.Run("TopReplacesFrameset", func(t *testing.T) {
		conv, w := load(t)
		resp, err := conv.Click(testContext(t), link(t, w, "nav", "top"))
		require.NoError(t, err)

		assert.True(t, resp.Frame().IsTop())
		assert.Equal(t, "Top", w.Content().Title())
		assert.Empty(t, w.Root().Children())
		assert.Nil(t, w.FrameNamed("nav"))
	})

	t.Run("BlankOpensWindow", func(t *testing.T) {
		conv, w := load(t)
		resp, err := conv.Click(testContext(t), link(t, w, "nav", "new"))
		require.NoError(t, err)

		require.Len(t, conv.Windows(), 2)
		assert.NotSame(t, w, resp.Window())
		assert.Equal(t, "Popup", resp.Title())
		assert.Same(t, resp.Window(), conv.CurrentWindow())
	})

	t.Run("UnknownNameOpensNamedWindow", func(t *testing.T) {
		conv, w := load(t)
		resp, err := conv.Click(testContext(t), link(t, w, "nav", "named"))
		require.NoError(t, err)

		side := conv.Window("side")
		require.NotNil(t, side)
		assert.Same(t, side, resp.Window())
		assert.Equal(t, "side", resp.Target)
	})

	t.Run("SameNamedSiblingsKeepTheirSlots", func(t *testing.T) {
		s.page("/twins", `<html><frameset rows="50%,50%">
			<frame name="x" src="/one">
			<frame name="x" src="/two">
		</frameset></html>`)
		s.page("/one", `<html><body><a id="go" href="/content">go</a></body></html>`)
		s.page("/two", `<html><body><a id="go" href="/content2">go</a></body></html>`)

		conv := newTestConversation(t, nil)
		ctx := testContext(t)
		resp, err := conv.GetResponse(ctx, s.url("/twins"))
		require.NoError(t, err)
		frames := resp.Window().Root().Children()
		require.Len(t, frames, 2)
		first, second := frames[0], frames[1]

		got, err := conv.Click(ctx, second.Response().Document.LinkWithID("go"))
		require.NoError(t, err)
		assert.Same(t, second, got.Frame())
		assert.Equal(t, "content2", elementText(t, got, "where"))
		assert.Equal(t, "/one", first.Response().URL.Path)

		// The inherited frame name resolves to the clicked frame, not the first match.
		got, err = conv.Click(ctx, first.Response().Document.LinkWithID("go"))
		require.NoError(t, err)
		assert.Same(t, first, got.Frame())
		assert.Equal(t, "/content2", second.Response().URL.Path)
	})

	t.Run("RefererFromSourceFrame", func(t *testing.T) {
		s.handle("/whoami", echoHeader("Referer"))
		conv, w := load(t)
		req, err := request.Get(s.url("/whoami"))
		require.NoError(t, err)
		req.SourceFrame = string(w.FrameNamed("nav").Selector())
		req.Target = "main"

		resp, err := conv.Submit(testContext(t), req)
		require.NoError(t, err)
		assert.Equal(t, s.url("/nav"), elementText(t, resp, "value"))
	})

	t.Run("MissingSourceFrame", func(t *testing.T) {
		conv, w := load(t)
		req, err := request.Get(s.url("/content"))
		require.NoError(t, err)
		req.SourceFrame = w.ID() + "/7"

		_, err = conv.Submit(testContext(t), req)
		assert.ErrorIs(t, err, ErrMissingTarget)

		_, err = conv.FrameContents(w, Selector(w.ID()+"/7"))
		assert.ErrorIs(t, err, ErrMissingTarget)
	})
}

func TestConversation_Windows(t *testing.T) {
	s := newSite(t)
	s.page("/a", `<html><head><title>A</title></head></html>`)
	s.page("/b", `<html><head><title>B</title></head></html>`)

	conv := newTestConversation(t, nil)
	ctx := testContext(t)

	main, err := conv.OpenWindow(ctx, s.url("/a"), "")
	require.NoError(t, err)
	aux, err := conv.OpenWindow(ctx, s.url("/b"), "aux")
	require.NoError(t, err)
	blank, err := conv.OpenWindow(ctx, "", "empty")
	require.NoError(t, err)

	assert.Len(t, conv.Windows(), 3)
	assert.Equal(t, "A", main.Content().Title())
	assert.Same(t, aux, conv.Window("aux"))
	assert.Equal(t, "about:blank", blank.Content().URL.String())
	assert.Same(t, blank, conv.CurrentWindow())

	// Reusing a name loads into the existing window.
	again, err := conv.OpenWindow(ctx, s.url("/a"), "aux")
	require.NoError(t, err)
	assert.Same(t, aux, again)
	assert.Equal(t, "A", aux.Content().Title())

	conv.CloseWindow(blank)
	assert.True(t, blank.Closed())
	assert.Len(t, conv.Windows(), 2)
	assert.Same(t, aux, conv.CurrentWindow())
}

func TestConversation_Forms(t *testing.T) {
	s := newSite(t)
	s.page("/form", `<html><body>
		<form name="search" action="/results">
			<input name="q" value="initial">
			<input type="submit" name="go" value="Go">
		</form>
		<form name="cancelled" action="/results" onsubmit="return false"><input name="q"></form>
		<form name="two" action="/results"><input type="submit" name="a"><input type="submit" name="b"></form>
	</body></html>`)
	s.handle("/results", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><body><p id="query">%s</p></body></html>`, r.URL.RawQuery)
	})

	t.Run("GetQuery", func(t *testing.T) {
		conv := newTestConversation(t, nil)
		ctx := testContext(t)
		page, err := conv.GetResponse(ctx, s.url("/form"))
		require.NoError(t, err)
		f := page.FormWithName("search")
		require.NotNil(t, f)
		require.NoError(t, f.SetParameter("q", "pagewalk"))

		resp, err := conv.SubmitForm(ctx, f, nil)
		require.NoError(t, err)
		assert.Equal(t, "q=pagewalk&go=Go", elementText(t, resp, "query"))
	})

	t.Run("OnSubmitCancels", func(t *testing.T) {
		conv := newTestConversation(t, nil)
		ctx := testContext(t)
		before := s.hitCount("/results")
		page, err := conv.GetResponse(ctx, s.url("/form"))
		require.NoError(t, err)

		resp, err := conv.SubmitForm(ctx, page.FormWithName("cancelled"), nil)
		require.NoError(t, err)
		assert.Same(t, page, resp)
		assert.Equal(t, before, s.hitCount("/results"))
	})

	t.Run("HandlersIgnoredWithoutScripting", func(t *testing.T) {
		conv := newTestConversation(t, nil, WithScriptEngine(nil))
		ctx := testContext(t)
		page, err := conv.GetResponse(ctx, s.url("/form"))
		require.NoError(t, err)

		resp, err := conv.SubmitForm(ctx, page.FormWithName("cancelled"), nil)
		require.NoError(t, err)
		assert.Equal(t, "/results", resp.URL.Path)
	})

	t.Run("AmbiguousSubmitter", func(t *testing.T) {
		conv := newTestConversation(t, nil)
		ctx := testContext(t)
		page, err := conv.GetResponse(ctx, s.url("/form"))
		require.NoError(t, err)
		f := page.FormWithName("two")

		_, err = conv.SubmitForm(ctx, f, nil)
		assert.Error(t, err)

		resp, err := conv.SubmitForm(ctx, f, f.SubmitButton("b", ""))
		require.NoError(t, err)
		assert.Equal(t, "b=", elementText(t, resp, "query"))
	})
}

func TestConversation_Scripts(t *testing.T) {
	s := newSite(t)
	s.page("/redirecting", `<html><body><script>location.href = "/landed";</script></body></html>`)
	s.page("/landed", `<html><head><title>Landed</title></head></html>`)
	s.page("/opener", `<html><body><script>window.open("/landed", "side");</script></body></html>`)
	s.page("/autosubmit", `<html><body>
		<form name="f" action="/landed" onsubmit="return false"><input name="q" value="x"></form>
		<script>document.forms[0].submit();</script>
	</body></html>`)
	s.page("/clicky", `<html><body>
		<a id="stay" href="/landed" onclick="return false">stay</a>
		<a id="js" href="javascript:location.href='/landed'">js</a>
	</body></html>`)
	s.page("/broken", `<html><body><script>notDefined();</script><p id="after">ok</p></body></html>`)
	s.page("/onload", `<html><body onload="document.getElementById('out').setAttribute('class', 'loaded')"><p id="out"></p></body></html>`)

	t.Run("LocationAssignment", func(t *testing.T) {
		conv := newTestConversation(t, nil)
		resp, err := conv.GetResponse(testContext(t), s.url("/redirecting"))
		require.NoError(t, err)
		assert.Equal(t, "Landed", resp.Title())
	})

	t.Run("WindowOpen", func(t *testing.T) {
		conv := newTestConversation(t, nil)
		resp, err := conv.GetResponse(testContext(t), s.url("/opener"))
		require.NoError(t, err)

		assert.Equal(t, "/opener", resp.URL.Path)
		side := conv.Window("side")
		require.NotNil(t, side)
		assert.Equal(t, "Landed", side.Content().Title())
	})

	t.Run("FormSubmitSkipsOnSubmit", func(t *testing.T) {
		conv := newTestConversation(t, nil)
		resp, err := conv.GetResponse(testContext(t), s.url("/autosubmit"))
		require.NoError(t, err)
		assert.Equal(t, "/landed", resp.URL.Path)
		assert.Equal(t, "q=x", resp.URL.RawQuery)
	})

	t.Run("ClickHandlers", func(t *testing.T) {
		conv := newTestConversation(t, nil)
		ctx := testContext(t)
		page, err := conv.GetResponse(ctx, s.url("/clicky"))
		require.NoError(t, err)

		resp, err := conv.Click(ctx, page.Document.LinkWithID("stay"))
		require.NoError(t, err)
		assert.Same(t, page, resp)

		resp, err = conv.Click(ctx, page.Document.LinkWithID("js"))
		require.NoError(t, err)
		assert.Equal(t, "Landed", resp.Title())
	})

	t.Run("ErrorsRecorded", func(t *testing.T) {
		conv := newTestConversation(t, func(c *config.ConversationConfig) { c.Scripting.ExceptionsOnError = false })
		resp, err := conv.GetResponse(testContext(t), s.url("/broken"))
		require.NoError(t, err)

		assert.Equal(t, "ok", elementText(t, resp, "after"))
		errs := conv.ScriptErrors()
		require.Len(t, errs, 1)
		var scriptErr *jsexec.ScriptError
		assert.ErrorAs(t, errs[0], &scriptErr)

		conv.ClearScriptErrors()
		assert.Empty(t, conv.ScriptErrors())
	})

	t.Run("ErrorsRaised", func(t *testing.T) {
		conv := newTestConversation(t, nil)
		_, err := conv.GetResponse(testContext(t), s.url("/broken"))
		var scriptErr *jsexec.ScriptError
		require.ErrorAs(t, err, &scriptErr)
		assert.Contains(t, scriptErr.Message, "notDefined")
	})

	t.Run("OnLoad", func(t *testing.T) {
		conv := newTestConversation(t, nil)
		resp, err := conv.GetResponse(testContext(t), s.url("/onload"))
		require.NoError(t, err)
		assert.Equal(t, "loaded", dom.Attr(resp.Document.ElementByID("out"), "class"))
	})
}

func TestConversation_Refresh(t *testing.T) {
	s := newSite(t)
	s.page("/now", `<html><head><meta http-equiv="refresh" content="0; url=/after"></head></html>`)
	s.page("/later", `<html><head><meta http-equiv="refresh" content="30; url=/after"></head></html>`)
	s.page("/after", `<html><head><title>After</title></head></html>`)

	t.Run("Automatic", func(t *testing.T) {
		conv := newTestConversation(t, func(c *config.ConversationConfig) { c.AutoRefresh = true })
		resp, err := conv.GetResponse(testContext(t), s.url("/now"))
		require.NoError(t, err)
		assert.Equal(t, "After", resp.Title())
	})

	t.Run("DelayOverLimit", func(t *testing.T) {
		conv := newTestConversation(t, func(c *config.ConversationConfig) {
			c.AutoRefresh = true
			c.MaxRefreshDelay = time.Second
		})
		resp, err := conv.GetResponse(testContext(t), s.url("/later"))
		require.NoError(t, err)
		assert.Equal(t, "/later", resp.URL.Path)
		require.NotNil(t, resp.Refresh)
		assert.Equal(t, 30*time.Second, resp.Refresh.Delay)
	})

	t.Run("Manual", func(t *testing.T) {
		conv := newTestConversation(t, nil)
		ctx := testContext(t)
		resp, err := conv.GetResponse(ctx, s.url("/now"))
		require.NoError(t, err)
		require.NotNil(t, resp.Refresh)

		next, err := conv.FollowRefresh(ctx, resp)
		require.NoError(t, err)
		assert.Equal(t, "After", next.Title())

		same, err := conv.FollowRefresh(ctx, next)
		require.NoError(t, err)
		assert.Same(t, next, same)
	})
}

func TestConversation_Listeners(t *testing.T) {
	s := newSite(t)
	s.handle("/start", redirectTo(http.StatusFound, "/end"))
	s.page("/end", `<html><body>end</body></html>`)

	rec := &recordingListener{}
	conv := newTestConversation(t, nil, WithListener(rec))
	_, err := conv.GetResponse(testContext(t), s.url("/start"))
	require.NoError(t, err)

	assert.Equal(t, []string{"GET /start", "GET /end"}, rec.sent)
	assert.Equal(t, []int{http.StatusFound, http.StatusOK}, rec.received)
	assert.Equal(t, []string{"/end"}, rec.pageLoads)

	conv.RemoveListener(rec)
	_, err = conv.GetResponse(testContext(t), s.url("/end"))
	require.NoError(t, err)
	assert.Len(t, rec.sent, 2)
}

func TestConversation_TransportFailure(t *testing.T) {
	boom := errors.New("connection refused")
	rec := &recordingListener{}
	conv := newTestConversation(t, nil,
		WithTransport(&mockTransport{handler: func(*http.Request) (*http.Response, error) { return nil, boom }}),
		WithListener(rec))

	_, err := conv.GetResponse(testContext(t), "http://unreachable.test/")
	var navErr *NavigationError
	require.ErrorAs(t, err, &navErr)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, rec.errors, 1)
	assert.Empty(t, conv.Windows(), "no window opens for a response that never arrived")
}

func TestConversation_FailedLoadKeepsWindows(t *testing.T) {
	boom := errors.New("connection refused")
	transport := &mockTransport{handler: func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/down" {
			return nil, boom
		}
		return htmlResponse(req, http.StatusOK, `<html><body>
			<a id="named" href="/down" target="popup">popup</a>
			<a id="blank" href="/down" target="_blank">blank</a>
		</body></html>`), nil
	}}
	conv := newTestConversation(t, nil, WithTransport(transport))
	ctx := testContext(t)
	page, err := conv.GetResponse(ctx, "http://example.test/")
	require.NoError(t, err)
	require.Len(t, conv.Windows(), 1)

	for _, id := range []string{"named", "blank"} {
		t.Run(id, func(t *testing.T) {
			_, err := conv.Click(ctx, page.Document.LinkWithID(id))
			assert.ErrorIs(t, err, boom)
			assert.Len(t, conv.Windows(), 1)
			assert.Nil(t, conv.Window("popup"))
		})
	}
}

func TestConversation_ReplacedPagesForgotten(t *testing.T) {
	s := newSite(t)
	s.page("/outer", `<html><frameset><frame name="inner" src="/inner"></frameset></html>`)
	s.page("/inner", `<html><body><a id="go" href="/outer" target="_top">again</a></body></html>`)

	conv := newTestConversation(t, nil)
	ctx := testContext(t)
	first, err := conv.GetResponse(ctx, s.url("/outer"))
	require.NoError(t, err)
	stale := first.Window().FrameNamed("inner").Response().Document.LinkWithID("go")
	require.NotNil(t, stale)
	require.Len(t, conv.pages, 2)

	for i := 0; i < 3; i++ {
		resp, err := conv.GetResponse(ctx, s.url("/outer"))
		require.NoError(t, err)
		assert.Len(t, conv.pages, 2, "load %d", i)
		assert.NotSame(t, first, resp)
	}

	_, err = conv.Click(ctx, stale)
	assert.ErrorContains(t, err, "does not belong")

	conv.CloseWindow(conv.CurrentWindow())
	assert.Empty(t, conv.pages)
}

func TestConversation_CloseLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	transport := &mockTransport{handler: func(req *http.Request) (*http.Response, error) {
		return htmlResponse(req, http.StatusOK, `<html><body><script>var x = 1 + 1;</script></body></html>`), nil
	}}
	conv := newTestConversation(t, nil, WithTransport(transport))
	_, err := conv.GetResponse(testContext(t), "http://example.test/")
	require.NoError(t, err)
	require.NoError(t, conv.Close())
}
