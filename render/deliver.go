package render

import (
	"fmt"
	"html/template"
	"net/http"
	"regexp"
	"strconv"
	"time"
)

var mobileAgent = regexp.MustCompile(`(?i)Android|webOS|iPhone|iPad|iPod|BlackBerry|IEMobile|Opera Mini`)

var mobileView = template.Must(template.New("export").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Filename}}</title>
</head>
<body style="margin:0;padding:16px;text-align:center;font-family:sans-serif">
<p>Long-press the image and choose "Save Image" to keep your portrait.</p>
<img src="{{.Src}}" alt="{{.Filename}}" style="max-width:100%;height:auto">
</body>
</html>
`))

// IsMobile probes the client for touch-first capabilities.
func IsMobile(r *http.Request) bool {
	if r.URL.Query().Get("touch") == "1" {
		return true
	}
	if r.Header.Get("Sec-CH-UA-Mobile") == "?1" {
		return true
	}
	return mobileAgent.MatchString(r.UserAgent())
}

// Filename is the download name of an export taken at t.
func Filename(t time.Time) string {
	return fmt.Sprintf("portrait-%d.png", t.UnixMilli())
}

// Deliver writes res as a file download, or as a page showing the image on
// mobile clients where downloads are unreliable.
func Deliver(w http.ResponseWriter, r *http.Request, res *Result) error {
	name := Filename(res.CreatedAt)
	if IsMobile(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		return mobileView.Execute(w, struct {
			Filename string
			Src      template.URL
		}{
			Filename: name,
			Src:      template.URL(EncodeDataURI("image/png", res.PNG)),
		})
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.PNG)))
	_, err := w.Write(res.PNG)
	return err
}
