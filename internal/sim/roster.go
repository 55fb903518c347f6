// Package sim is a standalone PBX bridge stand-in. It serves the bootstrap
// snapshot over REST, streams generated frames over WebSocket, and exposes a
// small control API so load and scenarios can be driven from the outside.
package sim

import (
	"fmt"

	"github.com/skandyx/evscallpro-live/internal/types"
)

var firstNames = []string{
	"Camille", "Julien", "Sophie", "Nicolas", "Emma", "Lucas",
	"Chloé", "Thomas", "Léa", "Antoine", "Manon", "Hugo",
}

var lastNames = []string{
	"Martin", "Bernard", "Dubois", "Robert", "Moreau", "Laurent",
	"Simon", "Michel", "Lefebvre", "Garcia", "Roux", "Fournier",
}

var campaignNames = []string{
	"Ventes Sortantes", "Support Client", "Enquête Satisfaction", "Relance Impayés",
}

// GenerateRoster builds a deterministic roster of agents, one supervisor and
// the campaign set.
func GenerateRoster(agentCount int) types.Bootstrap {
	users := make([]types.User, 0, agentCount+1)
	for i := 0; i < agentCount; i++ {
		users = append(users, types.User{
			ID:        fmt.Sprintf("agent-%03d", i+1),
			FirstName: firstNames[i%len(firstNames)],
			LastName:  lastNames[(i/len(firstNames))%len(lastNames)],
			Role:      types.RoleAgent,
		})
	}
	users = append(users, types.User{
		ID:        "supervisor-001",
		FirstName: "Isabelle",
		LastName:  "Petit",
		Role:      types.RoleSupervisor,
	})

	campaigns := make([]types.Campaign, 0, len(campaignNames))
	for i, name := range campaignNames {
		campaigns = append(campaigns, types.Campaign{
			ID:   fmt.Sprintf("campaign-%02d", i+1),
			Name: name,
		})
	}

	return types.Bootstrap{Users: users, Campaigns: campaigns}
}
