// Package clientcli provides a client library for a running media receiver.
//
// Send pushes local files to the upload server as multipart/form-data, one
// request per file. Status, List and Summary read the JSON status API that
// the server exposes on its admin port.
//
// # Basic Usage
//
//	client, err := clientcli.New("http://192.168.1.20:8080")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	results, err := client.Send(ctx, clientcli.SendOptions{
//		Paths:     []string{"./photos"},
//		Recursive: true,
//	})
//
// The status API lives on a different port:
//
//	admin, _ := clientcli.New("http://192.168.1.20:8081")
//	page, err := admin.List(ctx, clientcli.ListOptions{Category: mediareceiver.CategoryImages, All: true})
//
// # Output Formatting
//
// Use formatters for human-readable or JSON output:
//
//	formatter := clientcli.NewFormatter(jsonOutput, quiet)
//	formatter.FormatSend(os.Stdout, results)
package clientcli
