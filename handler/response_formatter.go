package handler

import "rentease/model"

// userFormatter picks what a viewer gets to see of an account: the account
// itself and admins get the private format, everybody else the public one.
func userFormatter(u model.User, viewer *model.AuthUser) any {
	if viewer != nil && (viewer.IsAdmin || viewer.ID == u.ID) {
		return u.ToPrivateFormat()
	}

	return u.ToPublicFormat()
}

func userArrFormatter(users []model.User, viewer *model.AuthUser) []any {
	res := []any{}
	for _, u := range users {
		res = append(res, userFormatter(u, viewer))
	}
	return res
}

func houseListFormatter(houses []model.House) []model.HouseListItem {
	res := []model.HouseListItem{}
	for _, h := range houses {
		res = append(res, h.ToListFormat())
	}
	return res
}

func reviewArrFormatter(reviews []model.Review) []model.PublicReview {
	res := []model.PublicReview{}
	for _, r := range reviews {
		res = append(res, r.ToPublicFormat())
	}
	return res
}
