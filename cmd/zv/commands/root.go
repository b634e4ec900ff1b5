package commands

import (
	"fmt"
	"os"

	"zarrvault/pkg/app"
	"zarrvault/pkg/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	// 全局应用实例，供子命令使用
	ZV *app.App
)

var rootCmd = &cobra.Command{
	Use:           "zv",
	Short:         "zarrvault: chunked arrays inside a single container file",
	SilenceUsage:  true,
	// 所有子命令执行前统一组装 App
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		ZV, err = app.NewApp()
		if err != nil {
			return fmt.Errorf("failed to initialize zarrvault: %w", err)
		}
		return nil
	},
}

// Execute 是入口
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.zv/config.yaml)")

	// 常用配置项也可以用参数覆盖
	rootCmd.PersistentFlags().String("compression", "", `block compression for written containers ("" or "zstd")`)
	rootCmd.PersistentFlags().String("staging", "", `staging backend for pending writes ("memory" or "temp")`)
	for flag, key := range map[string]string{
		"compression": "container.compression",
		"staging":     "staging.backend",
	} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			fmt.Println("Failed to bind flag:", err)
			os.Exit(1)
		}
	}
}

// initConfig 读取配置文件和环境变量
func initConfig() {
	if err := config.Load(cfgFile); err != nil {
		fmt.Println("Config error:", err)
		os.Exit(1)
	}
}
