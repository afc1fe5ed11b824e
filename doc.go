// Package courier provides resumable HTTP downloads, uploads and typed
// fetches behind a small client.
//
// A Client runs at most one download and one upload at a time. Each is
// tracked by a Transfer whose ordered event stream can be consumed as a
// channel, through callbacks, or by blocking until the outcome is known.
//
// # Basic Usage
//
// Create a client and download a file:
//
//	client, err := courier.NewClient(courier.WithDownloadDir("./downloads"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Block until the file is in place
//	path, err := client.Download(ctx, "https://example.com/data.tar")
//
//	// Or watch it progress
//	tr, err := client.StartDownload(ctx, "https://example.com/data.tar")
//	for e := range tr.Events() {
//	    fmt.Println(e.Type, e.Progress.Fraction)
//	}
//
// # Pause and Resume
//
// PauseDownload stops a running download and returns a single-use token.
// ResumeDownload continues from the bytes already received when the server
// honours range requests for an unchanged resource, and starts over
// otherwise:
//
//	token := client.PauseDownload()
//	tr, err = client.ResumeDownload(ctx, token)
//
// # Fetching Records
//
// FetchTyped decodes a JSON or YAML payload into a slice of records:
//
//	type Post struct {
//	    ID    int    `json:"id" yaml:"id"`
//	    Title string `json:"title" yaml:"title"`
//	}
//	posts, err := courier.FetchTyped[Post](ctx, client, "https://example.com/posts")
//
// # Errors
//
// Failures wrap sentinel errors such as ErrBadServerResponse and
// ErrFetchFailed and can be inspected with errors.Is and errors.As.
package courier
