package page

import (
	"bytes"
	"html/template"
	"log/slog"

	"github.com/sagarc03/mediareceiver"
)

var uploadedTemplate = template.Must(template.New("uploaded").Funcs(template.FuncMap{
	"size": mediareceiver.FormatSize,
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset='UTF-8'>
<meta name='viewport' content='width=device-width, initial-scale=1.0'>
<title>Upload complete</title>
</head>
<body>
<h1>Upload complete</h1>
<ul>
{{- range .Files}}
<li>{{.OriginalName}} ({{size .SizeBytes}}) saved to {{.Category}}</li>
{{- end}}
</ul>
<p>Files received this session: {{.Total}}</p>
<p><a href='/'>Upload more</a></p>
</body>
</html>
`))

var errorTemplate = template.Must(template.New("error").Parse(`<html>
<head><title>{{.Code}} {{.Reason}}</title></head>
<body>
<center><h1>{{.Code}} {{.Reason}}</h1></center>
{{- if .Message}}
<center><p>{{.Message}}</p></center>
{{- end}}
<hr><center>MediaReceiverPro</center>
</body>
</html>
`))

// Uploaded renders the confirmation page for a successful upload.
func Uploaded(files []mediareceiver.UploadedFile, total int64) string {
	var buf bytes.Buffer
	err := uploadedTemplate.Execute(&buf, struct {
		Files []mediareceiver.UploadedFile
		Total int64
	}{files, total})
	if err != nil {
		slog.Error("failed to render upload page", "err", err)
		return "Upload complete\n"
	}
	return buf.String()
}

// Error renders a small error page. message may be empty.
func Error(code int, reason, message string) string {
	var buf bytes.Buffer
	err := errorTemplate.Execute(&buf, struct {
		Code    int
		Reason  string
		Message string
	}{code, reason, message})
	if err != nil {
		slog.Error("failed to render error page", "err", err)
		return reason + "\n"
	}
	return buf.String()
}
