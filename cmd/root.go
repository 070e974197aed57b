/*
 * hlsrelay is an HTTP reverse proxy specialised for HLS streaming.
 * Copyright (C) 2025  hlsrelay contributors
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package cmd

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kestrelnet/hlsrelay/pkg/config"
	"github.com/kestrelnet/hlsrelay/pkg/server"
	"github.com/kestrelnet/hlsrelay/pkg/utils"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "hlsrelay",
	Short: "Reverse proxy for HLS streams",
	Long: `hlsrelay rewrites HLS playlists so every segment, AES-128 key and
nested playlist is pulled back through the proxy. It supports a configurable
outbound-proxy policy per upstream, bounded in-memory caching for segments
and keys, and a resolver for landing pages that hide their real stream URL
behind an iframe chain.`,

	Run: func(cmd *cobra.Command, args []string) {
		log.Printf("[hlsrelay] Server is starting...")

		config.DebugLoggingEnabled = viper.GetBool("debug-logging")

		if viper.GetBool("print-env") {
			utils.PrintEnv()
		}

		conf := &config.ProxyConfig{
			HostConfig: &config.HostConfiguration{
				Hostname: viper.GetString("hostname"),
				Port:     viper.GetInt("port"),
			},
			ServerBaseURL:  strings.TrimSuffix(viper.GetString("server-base-url"), "/"),
			VerifySSL:      viper.GetBool("verify-ssl"),
			RequestTimeout: time.Duration(viper.GetInt("request-timeout")) * time.Second,
			GeneralProxy:   config.SplitCSV(viper.GetString("general-proxy")),
			Socks5Proxy:    config.SplitCSV(viper.GetString("socks5-proxy")),
			HTTPProxy:      config.SplitCSV(viper.GetString("http-proxy")),
			HTTPSProxy:     config.SplitCSV(viper.GetString("https-proxy")),
			NoProxyHosts:   config.SplitCSV(viper.GetString("no-proxy-hosts")),
			AllowedHosts:   config.SplitCSV(viper.GetString("allowed-hosts")),
			PolicyRules:    config.DefaultPolicyRules(),

			PlaylistCacheTTL:          time.Duration(viper.GetInt("playlist-cache-ttl")) * time.Second,
			PlaylistCacheCapacity:     viper.GetInt("playlist-cache-capacity"),
			SegmentCacheMaxItems:      viper.GetInt("segment-cache-max-items"),
			SegmentCacheMaxTotalBytes: viper.GetInt64("segment-cache-max-total-bytes"),
			SegmentCacheMaxItemBytes:  viper.GetInt64("segment-cache-max-item-bytes"),
			KeyCacheCapacity:          viper.GetInt("key-cache-capacity"),

			LandingBaseURL:           config.DefaultLandingBase,
			LandingBaseDescriptorURL: viper.GetString("landing-base-descriptor-url"),
		}

		if len(conf.NoProxyHosts) == 0 {
			conf.NoProxyHosts = config.DefaultNoProxyHosts
		}

		srv, err := server.New(conf)
		if err != nil {
			log.Fatal(err)
		}

		if err := srv.Serve(); err != nil {
			log.Fatal(err)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default is $HOME/.hlsrelay.yaml)")

	rootCmd.Flags().Int("port", 8080, "Listening port")
	rootCmd.Flags().String("hostname", "", "Hostname to bind to")
	rootCmd.Flags().String("server-base-url", "http://localhost:8080", "Absolute base URL used when emitting rewritten URLs back to clients")
	rootCmd.Flags().Bool("debug-logging", false, "Enable debug-level logging")
	rootCmd.Flags().Bool("print-env", false, "Print the process environment at startup (debugging config issues)")

	rootCmd.Flags().Bool("verify-ssl", false, "Verify upstream TLS certificates by default")
	rootCmd.Flags().Int("request-timeout", 30, "Upstream request timeout in seconds")
	rootCmd.Flags().String("general-proxy", "", "Comma-separated general outbound proxy URL(s)")
	rootCmd.Flags().String("socks5-proxy", "", "Comma-separated SOCKS5/SOCKS5h proxy URL(s)")
	rootCmd.Flags().String("http-proxy", "", "Comma-separated HTTP proxy URL(s)")
	rootCmd.Flags().String("https-proxy", "", "Comma-separated HTTPS proxy URL(s)")
	rootCmd.Flags().String("no-proxy-hosts", "", "Comma-separated host substrings emitted unchanged (default: pluto.tv)")
	rootCmd.Flags().String("allowed-hosts", "", "Comma-separated host substrings /proxy/m3u is restricted to (empty: unrestricted)")

	rootCmd.Flags().Int("playlist-cache-ttl", 10, "Playlist cache TTL in seconds")
	rootCmd.Flags().Int("playlist-cache-capacity", 200, "Maximum playlist cache entries")
	rootCmd.Flags().Int("segment-cache-max-items", 2000, "Maximum segment cache entries")
	rootCmd.Flags().Int64("segment-cache-max-total-bytes", 512*1024*1024, "Maximum total segment cache bytes")
	rootCmd.Flags().Int64("segment-cache-max-item-bytes", 8*1024*1024, "Maximum bytes cached per segment")
	rootCmd.Flags().Int("key-cache-capacity", 1000, "Maximum key cache entries")

	rootCmd.Flags().String("landing-base-descriptor-url", "", "Remote text descriptor containing src = \"<LandingBase>\"")

	if err := viper.BindPFlags(rootCmd.Flags()); err != nil {
		log.Fatal("Error binding PFlags to viper")
	}
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigName(".hlsrelay")
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}
