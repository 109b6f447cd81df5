package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowAPIKeyGuide writes step-by-step instructions for obtaining an API key
func ShowAPIKeyGuide(w io.Writer) {
	rule := strings.Repeat("=", 72)

	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "RIOT API KEY")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "The harvester signs every request with a Riot Games API key.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "STEP 1: Sign in at https://developer.riotgames.com with your Riot account")
	fmt.Fprintln(w, "STEP 2: On the dashboard, press 'Regenerate API Key' under DEVELOPMENT API KEY")
	fmt.Fprintln(w, "STEP 3: Copy the key. It looks like RGAPI-xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx")
	fmt.Fprintln(w, "STEP 4: Run 'ladderharvest auth set-key' and paste it when prompted")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "NOTES:")
	fmt.Fprintln(w, "   - Development keys expire 24 hours after they are generated")
	fmt.Fprintln(w, "   - Development keys allow 20 requests per second and 100 per 2 minutes")
	fmt.Fprintln(w, "   - For a long-running harvester apply for a personal or production key")
	fmt.Fprintln(w, "   - RIOT_API_KEY or LADDERHARVEST_API_KEY in the environment take precedence")
	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
}

// ShowQuickKeyGuide writes a one-line reminder for experienced users
func ShowQuickKeyGuide(w io.Writer) {
	fmt.Fprintln(w, "Get a key at https://developer.riotgames.com, then run 'ladderharvest auth set-key'")
}
