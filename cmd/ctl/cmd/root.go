package cmd

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jpfielding/raster.go/pkg/codec"
	"github.com/jpfielding/raster.go/pkg/logging"
	"github.com/jpfielding/raster.go/pkg/raster"
	"github.com/jpfielding/raster.go/pkg/util"
)

func NewRoot(ctx context.Context, gitsha string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rasterctl",
		Short: "a CLI to identify and convert raster image files",
		Long:  "the long story",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logLevel, _ := cmd.Flags().GetString("log-level")

			// Parse log level
			var level slog.Level
			if err := level.UnmarshalText([]byte(strings.ToUpper(logLevel))); err != nil {
				level = slog.LevelInfo
			}
			slog.SetDefault(logging.Logger(os.Stdout, false, level))

			if err := level.UnmarshalText([]byte(strings.ToUpper(logLevel))); err != nil {
				slog.WarnContext(ctx, "Invalid log level, defaulting to INFO", "level", logLevel, "error", err)
			}
		},
		Run: func(cmd *cobra.Command, args []string) {
			printCommandTree(cmd, 0)
		},
	}
	cmd.AddCommand(
		NewVersionCmd(ctx, gitsha),
		NewIdentifyCmd(ctx),
		NewConvertCmd(ctx),
	)
	pf := cmd.PersistentFlags()
	pf.String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	return cmd
}

func printCommandTree(cmd *cobra.Command, indent int) {
	fmt.Println(strings.Repeat("\t", indent), cmd.Use+":", cmd.Short)
	for _, subCmd := range cmd.Commands() {
		printCommandTree(subCmd, indent+1)
	}
}

func NewVersionCmd(ctx context.Context, gitsha string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "git sha for this build",
		Long:  "git sha for this build",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(gitsha)
		},
	}
	return cmd
}

// openURI resolves "-", http(s) URLs and plain paths to a reader. The
// returned closer is never nil.
func openURI(ctx context.Context, cmd *cobra.Command, uri string) (io.ReadCloser, error) {
	uri = strings.TrimPrefix(uri, "file://")
	switch {
	case uri == "-":
		return io.NopCloser(os.Stdin), nil
	case strings.HasPrefix(uri, "http"):
		// TODO make this a param
		cl := &http.Client{
			Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}},
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %v", err)
		}
		resp, err := cl.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to download: %v", err)
		}
		verbose, _ := cmd.Flags().GetBool("verbose")
		if verbose {
			reqDump, _ := httputil.DumpRequest(req, true)
			os.Stderr.Write(reqDump)
			resDump, _ := httputil.DumpResponse(resp, false)
			os.Stderr.Write(resDump)
		}
		return resp.Body, nil
	default:
		f, err := os.Open(uri)
		if err != nil {
			return nil, fmt.Errorf("failed to open file: %v", err)
		}
		return f, nil
	}
}

// identity is the identify command's report.
type identity struct {
	Codec         string `json:"codec"`
	Kind          string `json:"kind"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	Channels      int    `json:"channels"`
	BitsPerSample int    `json:"bitsPerSample"`
	MD5           string `json:"md5"`
}

// NewIdentifyCmd probes a file against every registered codec and
// reports what it is.
func NewIdentifyCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identify",
		Short: "probe a raster file and report its format and geometry",
		Long:  "probe a raster file and report its format and geometry",
		RunE: func(cmd *cobra.Command, args []string) error {
			uri, _ := cmd.Flags().GetString("uri")
			if uri == "" && len(args) > 0 {
				uri = args[0]
			}
			if uri == "" {
				return fmt.Errorf("uri is required. Use --uri flag or provide as argument")
			}
			in, err := openURI(ctx, cmd, uri)
			if err != nil {
				return err
			}
			defer in.Close()

			data, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("failed to read input: %v", err)
			}
			img, c, err := codec.DecodeAny(bytes.NewReader(data), nil)
			if err != nil {
				return fmt.Errorf("identify error: %w", err)
			}
			id := identity{
				Codec:         c.Name(),
				Kind:          img.Kind().String(),
				Width:         img.Width(),
				Height:        img.Height(),
				Channels:      img.Channels(),
				BitsPerSample: img.BitsPerSample(),
				MD5:           util.Md5ThenHex(data),
			}
			switch format, _ := cmd.Flags().GetString("format"); format {
			case "text":
				fmt.Printf("%s %dx%d %s %d channel(s) %d bits/sample md5 %s\n",
					id.Codec, id.Width, id.Height, id.Kind, id.Channels, id.BitsPerSample, id.MD5)
			default:
				j, _ := json.Marshal(id)
				os.Stdout.Write(j)
				fmt.Println()
			}
			return nil
		},
	}
	pf := cmd.PersistentFlags()
	pf.StringP("uri", "u", "", "image URI to identify")
	pf.StringP("format", "f", "json", "output format (text|json)")
	pf.Bool("verbose", false, "dump HTTP request/response headers")
	return cmd
}

// NewConvertCmd decodes any recognized input and re-encodes it with a
// named output codec.
func NewConvertCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "decode a raster file and re-encode it in another format",
		Long:  "decode a raster file and re-encode it in another format",
		RunE: func(cmd *cobra.Command, args []string) error {
			uri, _ := cmd.Flags().GetString("uri")
			if uri == "" && len(args) > 0 {
				uri = args[0]
			}
			if uri == "" {
				return fmt.Errorf("uri is required. Use --uri flag or provide as argument")
			}
			in, err := openURI(ctx, cmd, uri)
			if err != nil {
				return err
			}
			defer in.Close()

			img, from, err := codec.DecodeAny(in, decodeOptions(ctx, cmd))
			if err != nil {
				return fmt.Errorf("decode error: %w", err)
			}

			to, _ := cmd.Flags().GetString("to")
			enc := codec.EncoderByName(to)
			if enc == nil {
				return fmt.Errorf("no encoder named %q", to)
			}
			slog.InfoContext(ctx, "converting",
				"from", from.Name(), "to", to,
				"width", img.Width(), "height", img.Height(), "kind", img.Kind().String())

			outPath, _ := cmd.Flags().GetString("out")
			if outPath == "" {
				base := strings.TrimSuffix(filepath.Base(uri), filepath.Ext(uri))
				if base == "" || base == "-" {
					base = "out"
				}
				outPath = base + "." + enc.SuggestedExtension(img)
			}
			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("failed to create output: %v", err)
			}
			defer f.Close()
			if err := enc.Encode(f, img); err != nil {
				return fmt.Errorf("encode error: %w", err)
			}
			slog.InfoContext(ctx, "wrote", "path", outPath)
			return nil
		},
	}
	pf := cmd.PersistentFlags()
	pf.StringP("uri", "u", "", "image URI to convert")
	pf.StringP("to", "t", "png", "output codec (png|pnm|ras|palm|gif)")
	pf.StringP("out", "o", "", "output path (derived from the input when empty)")
	pf.String("bounds", "", "decode window as x1,y1,x2,y2 (inclusive)")
	pf.Bool("verbose", false, "dump HTTP request/response headers")
	return cmd
}

// decodeOptions builds DecodeOptions from shared flags.
func decodeOptions(ctx context.Context, cmd *cobra.Command) *raster.DecodeOptions {
	opts := &raster.DecodeOptions{}
	if spec, _ := cmd.Flags().GetString("bounds"); spec != "" {
		var b raster.Bounds
		if _, err := fmt.Sscanf(spec, "%d,%d,%d,%d", &b.X1, &b.Y1, &b.X2, &b.Y2); err == nil {
			opts.Bounds = &b
		} else {
			slog.WarnContext(ctx, "ignoring malformed bounds", "bounds", spec, "error", err)
		}
	}
	return opts
}
