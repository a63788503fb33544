// Package ftpstore opens file storage backends behind one interface.
//
// # Overview
//
// A backend is described by a storage.Settings value: a base URL, optional
// credentials and free-form options. The URL scheme selects the backend:
//   - ftp://host[:port]/path serves files from an FTP server
//   - file:///path serves files from a local directory
//   - s3://bucket/prefix serves objects from an S3 bucket
//
// All backends implement storage.Backend and report failures as
// *storage.Error values whose kind can be matched with errors.Is:
//
//	if errors.Is(err, storage.ErrNotFound) {
//	    // ...
//	}
//
// # Basic Usage
//
//	b, err := ftpstore.Open("", storage.Settings{
//	    BaseURL:  "ftp://files.example.com/incoming",
//	    User:     "alice",
//	    Password: "secret",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	f, _ := os.Open("report.csv")
//	defer f.Close()
//	st, _ := f.Stat()
//	if err := b.Upload(ctx, f, st.Size(), "report.csv", "2024/q1"); err != nil {
//	    log.Fatal(err)
//	}
//
// # Configuration
//
// Settings can be read from a YAML file with storage.LoadSettingsFile and
// overlaid with FTPSTORE_BASE_URL, FTPSTORE_USER and FTPSTORE_PASSWORD from
// the environment using storage.SettingsFromEnv.
//
// # Connections
//
// The FTP backend holds no connection between calls. Each exchange dials,
// logs in, runs its commands and quits, so a single operation such as Upload
// may open several connections. Credentials are used only when both user and
// password are set; otherwise the backend logs in as anonymous.
package ftpstore
