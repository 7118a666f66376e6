// Package policy holds the per-operation authorization rules. Every function takes
// the acting user and the resource and answers allow or deny; loading the resource
// and turning a deny into a response is up to the caller.
package policy

import "rentease/model"

func isOwnerOrAdmin(actor model.AuthUser, ownerID string) bool {
	return actor.IsAdmin || (actor.ID != "" && actor.ID == ownerID)
}

// CanSeeHouse mirrors model.HousesVisibleTo for a single, already loaded house.
// A nil actor is an anonymous caller.
func CanSeeHouse(actor *model.AuthUser, house model.House) bool {
	if house.Approved {
		return true
	}
	if actor == nil {
		return false
	}
	return isOwnerOrAdmin(*actor, house.OwnerID)
}

func CanEditHouse(actor model.AuthUser, house model.House) bool {
	return isOwnerOrAdmin(actor, house.OwnerID)
}

// Only the owner removes a listing.
func CanDeleteHouse(actor model.AuthUser, house model.House) bool {
	return actor.ID != "" && actor.ID == house.OwnerID
}

func CanSubmitHouse(actor model.AuthUser, house model.House) bool {
	return actor.ID != "" && actor.ID == house.OwnerID
}

func CanModerateHouse(actor model.AuthUser) bool {
	return actor.IsAdmin
}

func CanManageCategories(actor model.AuthUser) bool {
	return actor.IsAdmin
}

// CanSeeRentRequest requires house to be the request's house.
func CanSeeRentRequest(actor model.AuthUser, req model.RentRequest, house model.House) bool {
	if actor.IsAdmin {
		return true
	}
	return actor.ID != "" && (actor.ID == req.TenantID || actor.ID == house.OwnerID)
}

func CanDecideRentRequest(actor model.AuthUser, house model.House) bool {
	return isOwnerOrAdmin(actor, house.OwnerID)
}

func CanPayRentRequest(actor model.AuthUser, req model.RentRequest) bool {
	return actor.ID != "" && actor.ID == req.TenantID
}

func CanEditReview(actor model.AuthUser, review model.Review) bool {
	return actor.ID != "" && actor.ID == review.ReviewerID
}

func CanRemoveFavorite(actor model.AuthUser, fav model.Favorite) bool {
	return actor.ID != "" && actor.ID == fav.UserID
}

// CanManageUser covers deleting an account: yourself, or anyone as an admin.
func CanManageUser(actor model.AuthUser, userID string) bool {
	return isOwnerOrAdmin(actor, userID)
}
