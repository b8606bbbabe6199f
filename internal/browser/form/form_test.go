// internal/browser/form/form_test.go
package form

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/pagewalk/internal/browser/dom"
	"github.com/xkilldash9x/pagewalk/internal/browser/request"
)

// setupForm parses page and returns its first form.
func setupForm(t *testing.T, page string) *Form {
	t.Helper()
	u, err := url.Parse("http://example.test/app/page.html")
	require.NoError(t, err)
	doc, err := dom.Parse(dom.HTMLParser{}, strings.NewReader(page), u, dom.Options{Charset: "utf-8"})
	require.NoError(t, err)
	forms := All(doc, Origin{Frame: "w1/0", Target: "inherited"})
	require.NotEmpty(t, forms)
	return forms[0]
}

func requireKind(t *testing.T, err, kind error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, kind), "expected %v, got %v", kind, err)
	var perr *ParameterError
	assert.True(t, errors.As(err, &perr), "errors are wrapped in *ParameterError")
}

func TestForm_Attributes(t *testing.T) {
	f := setupForm(t, `<form name="login" id="f1" action="submit.cgi?drop=1" method="post"
		enctype="multipart/form-data" accept-charset="bogus ISO-8859-1" onsubmit="return check()">
		<input name="user"></form>`)

	assert.Equal(t, "login", f.Name())
	assert.Equal(t, "f1", f.ID())
	assert.Equal(t, "POST", f.Method())
	assert.Equal(t, "http://example.test/app/submit.cgi?drop=1", f.Action().String())
	assert.Equal(t, request.EncodingMultipart, f.Enctype())
	assert.Equal(t, "windows-1252", f.Charset())
	assert.Equal(t, "return check()", f.OnSubmit())
	assert.Equal(t, "inherited", f.Target(), "no own or base target falls back to the document's target")

	t.Run("defaults", func(t *testing.T) {
		f := setupForm(t, `<form target="side"></form>`)
		assert.Equal(t, "GET", f.Method())
		assert.Equal(t, "http://example.test/app/page.html", f.Action().String())
		assert.Equal(t, "utf-8", f.Charset())
		assert.Equal(t, "side", f.Target())
	})

	t.Run("base target", func(t *testing.T) {
		f := setupForm(t, `<head><base target="main"></head><body><form></form></body>`)
		assert.Equal(t, "main", f.Target())
	})
}

const controlsPage = `<form action="/search">
<input name="q" value="go">
<input type="hidden" name="token" value="abc">
<input type="password" name="pw">
<textarea name="notes">line one</textarea>
<input type="checkbox" name="agree">
<input type="checkbox" name="color" value="red" checked>
<input type="checkbox" name="color" value="blue">
<input type="radio" name="size" value="s">
<input type="radio" name="size" value="m" checked>
<input type="radio" name="size" value="l">
<select name="lang"><option>en</option><option value="fr" selected>French</option></select>
<select name="tags" multiple><option selected>a</option><option>b</option></select>
<select name="tags"><option value="c" selected>c</option><option>d</option></select>
<input name="locked" value="x" readonly>
<input name="off" value="y" disabled>
<fieldset disabled><legend><input name="inlegend" value="l"></legend><input name="infield" value="z"></fieldset>
<input type="submit" name="go" value="Search">
</form>`

func TestForm_Defaults(t *testing.T) {
	f := setupForm(t, controlsPage)

	assert.Equal(t, "go", f.Value("q"))
	assert.Equal(t, "line one", f.Value("notes"))
	assert.Empty(t, f.Values("agree"), "an unchecked checkbox holds no value")
	assert.Equal(t, []string{"red"}, f.Values("color"))
	assert.Equal(t, []string{"m"}, f.Values("size"))
	assert.Equal(t, []string{"fr"}, f.Values("lang"))
	assert.Equal(t, []string{"en", "French"}, f.Options("lang"))
	assert.Equal(t, []string{"en", "fr"}, f.OptionValues("lang"))

	t.Run("same-named selects are one control", func(t *testing.T) {
		controls := f.ControlsNamed("tags")
		require.Len(t, controls, 1)
		assert.Equal(t, KindSelectMultiple, controls[0].Kind())
		assert.Len(t, controls[0].Nodes(), 2)
		assert.Equal(t, []string{"a", "b", "c", "d"}, f.OptionValues("tags"))
		assert.Equal(t, []string{"a", "c"}, f.Values("tags"))
	})

	t.Run("radio buttons are one group", func(t *testing.T) {
		controls := f.ControlsNamed("size")
		require.Len(t, controls, 1)
		assert.Equal(t, KindRadio, controls[0].Kind())
	})

	assert.True(t, f.IsReadOnly("locked"))
	assert.True(t, f.IsDisabled("off"))
	assert.True(t, f.IsDisabled("infield"))
	assert.False(t, f.IsDisabled("inlegend"), "the first legend of a disabled fieldset stays enabled")
	assert.Len(t, f.SubmitButtons(), 1)
	assert.Equal(t, []string{"q", "token", "pw", "notes", "agree", "color", "size", "lang", "tags", "locked", "off", "inlegend", "infield"}, f.ParameterNames())
}

func TestForm_GetRoundTripOfDefaults(t *testing.T) {
	f := setupForm(t, controlsPage)
	r, err := f.Request(nil)
	require.NoError(t, err)

	httpReq, err := r.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "GET", httpReq.Method)

	want := "q=go&token=abc&pw=&notes=line+one&color=red&size=m&lang=fr&tags=a&tags=c&locked=x&inlegend=l&go=Search"
	assert.Equal(t, want, httpReq.URL.RawQuery)
	assert.Equal(t, "/search", httpReq.URL.Path)

	got := request.ParseQuery(httpReq.URL.RawQuery)
	params, err := r.Parameters()
	require.NoError(t, err)
	if diff := cmp.Diff(params, got); diff != "" {
		t.Errorf("query does not round-trip the defaults (-want +got):\n%s", diff)
	}
}

func TestForm_Mutation(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		f := setupForm(t, controlsPage)
		require.NoError(t, f.SetParameter("q", "pagewalk"))
		assert.Equal(t, "pagewalk", f.Value("q"))
		requireKind(t, f.SetParameter("q", "a", "b"), ErrMultipleValues)
		assert.Equal(t, "pagewalk", f.Value("q"), "a rejected change leaves the state alone")
		require.NoError(t, f.RemoveParameter("q"))
		assert.Equal(t, []string{""}, f.Values("q"))
	})

	t.Run("unknown name", func(t *testing.T) {
		f := setupForm(t, controlsPage)
		requireKind(t, f.SetParameter("nope", "x"), ErrUnknownParameter)
	})

	t.Run("checkbox double toggle restores the state", func(t *testing.T) {
		f := setupForm(t, controlsPage)
		before := f.Values("agree")
		require.NoError(t, f.ToggleCheckbox("agree"))
		assert.Equal(t, []string{"on"}, f.Values("agree"))
		require.NoError(t, f.ToggleCheckbox("agree"))
		assert.Equal(t, before, f.Values("agree"))

		require.NoError(t, f.ToggleCheckboxValue("color", "blue"))
		assert.Equal(t, []string{"red", "blue"}, f.Values("color"))
		requireKind(t, f.ToggleCheckboxValue("color", "green"), ErrIllegalValue)
	})

	t.Run("checkbox rejects other values", func(t *testing.T) {
		f := setupForm(t, controlsPage)
		requireKind(t, f.SetParameter("agree", "yes"), ErrIllegalValue)
		requireKind(t, f.SetParameter("agree", "on", "on"), ErrMultipleValues)
		require.NoError(t, f.SetParameter("agree", "on"))
	})

	t.Run("same-named checkboxes", func(t *testing.T) {
		f := setupForm(t, controlsPage)
		require.NoError(t, f.SetParameter("color", "blue"))
		assert.Equal(t, []string{"blue"}, f.Values("color"))
		requireKind(t, f.SetParameter("color", "red", "blue", "red"), ErrUnusedParameterValue)
		requireKind(t, f.SetParameter("color", "green"), ErrIllegalValue)
	})

	t.Run("radio holds exactly one selection", func(t *testing.T) {
		f := setupForm(t, controlsPage)
		require.NoError(t, f.SelectRadio("size", "l"))
		assert.Equal(t, []string{"l"}, f.Values("size"))
		require.NoError(t, f.SelectRadio("size", "s"))
		assert.Equal(t, []string{"s"}, f.Values("size"))
		requireKind(t, f.SelectRadio("size", "xl"), ErrIllegalValue)
		requireKind(t, f.SetParameter("size", "s", "m"), ErrMultipleValues)
		requireKind(t, f.SelectRadio("q", "s"), ErrIllegalValue)
	})

	t.Run("select", func(t *testing.T) {
		f := setupForm(t, controlsPage)
		requireKind(t, f.SetParameter("lang", "de"), ErrIllegalValue)
		requireKind(t, f.SetParameter("lang", "en", "fr"), ErrMultipleValues)
		require.NoError(t, f.SetParameter("lang", "en"))
		require.NoError(t, f.SetParameter("tags", "b", "d"))
		assert.Equal(t, []string{"b", "d"}, f.Values("tags"))
		requireKind(t, f.SetParameter("tags", "b", "z"), ErrIllegalValue)
	})

	t.Run("same-named text fields", func(t *testing.T) {
		f := setupForm(t, `<form><input name="p" value="1"><input name="p" value="2"></form>`)
		require.NoError(t, f.SetParameter("p", "a"))
		assert.Equal(t, []string{"a", ""}, f.Values("p"))
		require.NoError(t, f.SetParameter("p", "a", "b"))
		requireKind(t, f.SetParameter("p", "a", "b", "c"), ErrUnusedParameterValue)
	})

	t.Run("reset", func(t *testing.T) {
		f := setupForm(t, controlsPage)
		require.NoError(t, f.SetParameter("q", "changed"))
		require.NoError(t, f.SelectRadio("size", "l"))
		f.Reset()
		assert.Equal(t, "go", f.Value("q"))
		assert.Equal(t, []string{"m"}, f.Values("size"))
	})

	t.Run("change callback", func(t *testing.T) {
		f := setupForm(t, controlsPage)
		var seen []string
		f.OnChange(func(c *Control) error {
			seen = append(seen, c.Name())
			return nil
		})
		require.NoError(t, f.SetParameter("q", "go"), "an unchanged value is not a change")
		require.NoError(t, f.SetParameter("q", "new"))
		require.NoError(t, f.ToggleCheckbox("agree"))
		assert.Equal(t, []string{"q", "agree"}, seen)

		f.OnChange(func(*Control) error { return assert.AnError })
		assert.ErrorIs(t, f.SetParameter("q", "again"), assert.AnError)
	})
}

func TestForm_Locks(t *testing.T) {
	f := setupForm(t, controlsPage)

	requireKind(t, f.SetParameter("locked", "other"), ErrControlLocked)
	requireKind(t, f.SetParameter("off", "other"), ErrControlLocked)
	requireKind(t, f.SetParameter("infield", "other"), ErrControlLocked)
	requireKind(t, f.SetParameter("locked", "x"), ErrControlLocked)
	requireKind(t, f.SetParameter("off", "y"), ErrControlLocked)
	requireKind(t, f.SetParameter("infield", "z"), ErrControlLocked)
	requireKind(t, f.RemoveParameter("locked"), ErrControlLocked)
	assert.Equal(t, "x", f.Value("locked"))

	script := f.ScriptAccess()
	require.NoError(t, script.SetParameter("locked", "by script"))
	assert.Equal(t, "by script", f.Value("locked"))

	off := f.Control("off")
	script.SetDisabled(off, false)
	require.NoError(t, f.SetParameter("off", "now allowed"), "validated mutation sees the new state immediately")

	q := f.Control("q")
	script.SetReadOnly(q, true)
	requireKind(t, f.SetParameter("q", "blocked"), ErrControlLocked)
	require.NoError(t, script.SetValues(q, "scripted"))
	assert.Equal(t, "scripted", f.Value("q"))
	requireKind(t, script.SetValues(q, "a", "b"), ErrMultipleValues)

	size := f.Control("size")
	script.SetChecked(size, size.Options()[0].Node, true)
	assert.Equal(t, []string{"s"}, f.Values("size"))
	script.SetChecked(size, size.Options()[0].Node, false)
	assert.Empty(t, f.Values("size"))
}

func TestForm_LocksComeFirst(t *testing.T) {
	f := setupForm(t, `<form action="/s">
<select name="fixed" disabled><option>a</option><option>b</option></select>
<input type="radio" name="mode" value="on" checked disabled>
<input type="radio" name="mode" value="off" disabled>
<input type="file" name="scan" disabled>
<input type="checkbox" name="pick" value="one">
<input type="checkbox" name="pick" value="two" disabled>
</form>`)

	t.Run("illegal value on a locked control", func(t *testing.T) {
		requireKind(t, f.SetParameter("fixed", "zzz"), ErrControlLocked)
		requireKind(t, f.SetParameter("fixed", "a"), ErrControlLocked)
		requireKind(t, f.SelectRadio("mode", "nowhere"), ErrControlLocked)
		requireKind(t, f.SetParameter("mode", "on"), ErrControlLocked)
	})

	t.Run("file controls", func(t *testing.T) {
		requireKind(t, f.SetFiles("scan"), ErrControlLocked)
		requireKind(t, f.SetFiles("scan", &request.File{Name: "a.txt"}), ErrControlLocked)
	})

	t.Run("mixed group only guards the locked member", func(t *testing.T) {
		require.NoError(t, f.SetParameter("pick", "one"))
		assert.Equal(t, []string{"one"}, f.Values("pick"))
		requireKind(t, f.SetParameter("pick", "one", "two"), ErrControlLocked)
		assert.Equal(t, []string{"one"}, f.Values("pick"))
	})

	t.Run("script boundary is exempt", func(t *testing.T) {
		require.NoError(t, f.ScriptAccess().SetParameter("fixed", "b"))
		assert.Equal(t, "b", f.Value("fixed"))
	})
}

const filePage = `<form method="post" action="/upload">
<input name="title" value="doc">
<input type="file" name="attachment">
<input type="submit" value="Send">
</form>`

func TestForm_Files(t *testing.T) {
	t.Run("file values are not strings", func(t *testing.T) {
		f := setupForm(t, filePage)
		requireKind(t, f.SetParameter("attachment", "report.txt"), ErrInvalidFileParameter)
		requireKind(t, f.SetFiles("title", &request.File{Name: "a.txt"}), ErrInvalidFileParameter)
		requireKind(t, f.SetFiles("attachment", &request.File{Name: "a"}, &request.File{Name: "b"}), ErrMultipleValues)
		requireKind(t, f.SetFiles("missing", &request.File{Name: "a"}), ErrUnknownParameter)
	})

	t.Run("a selected file forces multipart", func(t *testing.T) {
		f := setupForm(t, filePage)
		require.NoError(t, f.SetFiles("attachment", &request.File{Name: "report.txt", ContentType: "text/plain", Content: []byte("hello")}))
		r, err := f.Request(nil)
		require.NoError(t, err)
		httpReq, err := r.Build(context.Background())
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(httpReq.Header.Get("Content-Type"), "multipart/form-data"))
		body, err := io.ReadAll(httpReq.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), `filename="report.txt"`)
		assert.Contains(t, string(body), "hello")
	})

	t.Run("unassigned file fields", func(t *testing.T) {
		f := setupForm(t, filePage)
		r, err := f.Request(nil)
		require.NoError(t, err)
		params, err := r.Parameters()
		require.NoError(t, err)
		require.Len(t, params, 2)
		assert.Equal(t, request.Param{Name: "attachment", IsFile: true}, params[1])

		httpReq, err := r.Build(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "application/x-www-form-urlencoded", httpReq.Header.Get("Content-Type"))
	})
}

const buttonsPage = `<form action="/act" method="post">
<input name="item" value="7">
<input type="submit" name="op" value="save">
<input type="submit" name="op" value="delete">
<input type="image" name="map" src="m.png">
<button name="later" value="1" disabled>Later</button>
<button type="button" name="noop" value="n">No-op</button>
<input type="submit" name="alt" value="alt" formaction="/other" formmethod="get" formtarget="popup">
</form>`

func TestForm_Submission(t *testing.T) {
	t.Run("ambiguous submit", func(t *testing.T) {
		f := setupForm(t, buttonsPage)
		_, err := f.Request(nil)
		requireKind(t, err, ErrSubmissionAmbiguity)
	})

	t.Run("chosen submit button", func(t *testing.T) {
		f := setupForm(t, buttonsPage)
		r, err := f.Request(f.SubmitButton("op", "delete"))
		require.NoError(t, err)
		params, err := r.Parameters()
		require.NoError(t, err)
		assert.Equal(t, []request.Param{{Name: "item", Value: "7"}, {Name: "op", Value: "delete"}}, params)
		assert.Equal(t, "w1/0", r.SourceFrame)
		assert.True(t, r.Validated())
	})

	t.Run("image button coordinates", func(t *testing.T) {
		f := setupForm(t, buttonsPage)
		r, err := f.RequestAt(f.Control("map"), 3, 9)
		require.NoError(t, err)
		params, err := r.Parameters()
		require.NoError(t, err)
		assert.Equal(t, []request.Param{
			{Name: "item", Value: "7"},
			{Name: "map.x", Value: "3"},
			{Name: "map.y", Value: "9"},
		}, params)
	})

	t.Run("disabled button", func(t *testing.T) {
		f := setupForm(t, `<form><input type="submit" name="s" disabled></form>`)
		_, err := f.Request(f.Control("s"))
		requireKind(t, err, ErrControlDisabled)
		r, err := f.Request(nil)
		require.NoError(t, err, "a disabled button does not count toward ambiguity")
		params, err := r.Parameters()
		require.NoError(t, err)
		assert.Empty(t, params)
	})

	t.Run("button overrides", func(t *testing.T) {
		f := setupForm(t, buttonsPage)
		r, err := f.Request(f.Control("alt"))
		require.NoError(t, err)
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "http://example.test/other", r.URL.String())
		assert.Equal(t, "popup", r.Target)
		assert.Equal(t, request.EncodingQuery, r.Encoding)
	})

	t.Run("value pinned on another button is unused", func(t *testing.T) {
		f := setupForm(t, buttonsPage)
		r, err := f.Request(f.SubmitButton("op", "save"))
		require.NoError(t, err)
		require.NoError(t, r.SetParameter("noop", "n"))
		_, err = r.Parameters()
		requireKind(t, err, ErrUnusedParameterValue)
		_, err = r.Build(context.Background())
		requireKind(t, err, ErrUnusedParameterValue)
	})

	t.Run("validated request is a snapshot", func(t *testing.T) {
		f := setupForm(t, buttonsPage)
		r, err := f.Request(f.SubmitButton("op", "save"))
		require.NoError(t, err)
		require.NoError(t, r.SetParameter("item", "8"))
		assert.Equal(t, []string{"8"}, r.Values("item"))
		assert.Equal(t, "7", f.Value("item"), "the form keeps its own state")
		requireKind(t, r.SetParameter("ghost", "x"), ErrUnknownParameter)
	})

	t.Run("unchecked request", func(t *testing.T) {
		f := setupForm(t, buttonsPage)
		r := f.UncheckedRequest(f.SubmitButton("op", "save"))
		assert.False(t, r.Validated())
		require.NoError(t, r.SetParameter("ghost", "x"))
		require.NoError(t, r.SetParameter("item", "1", "2"))
		params, err := r.Parameters()
		require.NoError(t, err)
		assert.Equal(t, []request.Param{
			{Name: "item", Value: "1"},
			{Name: "item", Value: "2"},
			{Name: "op", Value: "save"},
			{Name: "ghost", Value: "x"},
		}, params)
	})
}

func TestForm_ControlsOutsideTheForm(t *testing.T) {
	f := setupForm(t, `<form id="f"><input name="inside"></form><input name="outside" form="f"><input name="stray">`)
	assert.Equal(t, []string{"inside", "outside"}, f.ParameterNames())
	assert.Same(t, f.Control("outside"), f.ControlFor(f.Control("outside").Node()))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "select-multiple", KindSelectMultiple.String())
	assert.Equal(t, "unknown", Kind(99).String())
}

func TestNewRejectsNonForm(t *testing.T) {
	u, _ := url.Parse("http://example.test/")
	doc, err := dom.Parse(nil, strings.NewReader("<p>x</p>"), u, dom.Options{})
	require.NoError(t, err)
	_, err = New(doc, doc.TextBlocks()[0].Node, Origin{})
	assert.Error(t, err)
}
