// Package errorpage is the narrow external collaborator spec §1/§6 calls
// out for the HTML error page layout: a fixed NGINX-style template,
// rendered once per error response (spec §4.5, §6 "fixed HTML template").
package errorpage

import "fmt"

const template = `<html>
<head><title>%d %s</title></head>
<body>
<center><h1>%d %s</h1></center>
<hr><center>staticd</center>
</body>
</html>
`

// Render returns the HTML body for an error response with the given
// status code and reason phrase. The same template backs every error
// status internal/handler sends (400, 403, 404, 405, 416, 500); the
// master's admission-full 503 writes its own minimal body instead.
func Render(status int, reason string) []byte {
	return []byte(fmt.Sprintf(template, status, reason, status, reason))
}
