package banner

import (
	"kmsload/internal/tui/styles"

	"github.com/charmbracelet/lipgloss"
)

func GetString() string {
	renderer := lipgloss.DefaultRenderer()

	style := renderer.NewStyle().
		Foreground(styles.ColorBanner).
		Bold(true)

	ascii := `
    __                    __                __
   / /______ ___  _____  / /___  ____ _____/ /
  / //_/ __ '__ \/ ___/ / / __ \/ __ '/ __  / 
 / ,< / / / / / (__  ) / / /_/ / /_/ / /_/ /  
/_/|_/_/ /_/ /_/____/ /_/\____/\__,_/\__,_/   `

	return "\n" + style.Render(ascii) + "\n"
}
